package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benjaminschreck/go-xtpl/pkg/xtpl"
	"github.com/benjaminschreck/go-xtpl/pkg/xtpl/datafile"
	"github.com/benjaminschreck/go-xtpl/pkg/xtpl/store"
)

var (
	dataPath  string
	outPath   string
	extension string
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tpl, err := compileFile(args[0])
		if err != nil {
			return err
		}
		data, err := loadData()
		if err != nil {
			return err
		}

		out, err := tpl.Render(data)
		if err != nil {
			return err
		}
		if outPath == "" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		}
		logger.Debug("writing output", zap.String("path", outPath), zap.Int("bytes", len(out)))
		return os.WriteFile(outPath, []byte(out), 0644)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <template>...",
	Short: "Compile templates and report syntax errors",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			if _, err := compileFile(path); err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d templates failed to compile", failed, len(args))
		}
		return nil
	},
}

var blocksCmd = &cobra.Command{
	Use:   "blocks <template>",
	Short: "Print the compiled block table of a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tpl, err := compileFile(args[0])
		if err != nil {
			return err
		}
		for _, block := range tpl.Blocks() {
			label := block.String()
			if block.Master {
				label += " (master)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n    %q\n", label, block.Body)
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := json.MarshalIndent(configSchema(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir> <name>",
	Short: "Re-render a template from a directory whenever it changes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, name := args[0], args[1]
		data, err := loadData()
		if err != nil {
			return err
		}

		var st *store.Store
		render := func() {
			out, err := st.Render(name, data)
			if err != nil {
				logger.Error("render failed", zap.String("name", name), zap.Error(err))
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}

		st, err = store.New(dir,
			store.WithExtension(extension),
			store.WithLogger(logger),
			store.WithOnChange(func(changed string, err error) {
				if changed == name && err == nil {
					render()
				}
			}))
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		render()
		if err := st.Watch(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "xtpl version %s\n", version)
	},
}

func compileFile(path string) (*xtpl.Template, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tpl, err := xtpl.Compile(string(src), xtpl.WithLogger(logger))
	if err != nil {
		return nil, xtpl.WithContext(err, "compile", map[string]interface{}{"path": path})
	}
	return tpl, nil
}

func loadData() (interface{}, error) {
	if dataPath == "" {
		return xtpl.Data{}, nil
	}
	return datafile.Load(dataPath)
}

func configSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&xtpl.Config{})
	schema.Title = "xtpl configuration"
	return schema
}
