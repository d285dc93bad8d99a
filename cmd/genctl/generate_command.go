package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"genpipe/internal/admission"
	"genpipe/internal/domain"
	"genpipe/internal/httpexec"
	"genpipe/internal/jobs"
	"genpipe/internal/pipeline"
	"genpipe/internal/staging"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		kind        string
		script      string
		refAudio    string
		target      string
		sources     []string
		speed       float64
		temperature float64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation attempt end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			logger := ctx.logger()

			balance, err := client.Balance(cmd.Context(), ctx.identity)
			if err != nil {
				return err
			}

			inputs := pipeline.Inputs{
				Identity: ctx.identity,
				Balance:  balance,
				Kind:     domain.JobKind(kind),
				Script:   script,
				Options:  map[string]any{},
			}
			if speed > 0 {
				inputs.Options["speed"] = speed
			}
			if temperature > 0 {
				inputs.Options["temperature"] = temperature
			}
			if inputs.Target, err = loadFile(target); err != nil {
				return err
			}
			if inputs.RefAudio, err = loadFile(refAudio); err != nil {
				return err
			}
			for _, src := range sources {
				f, err := loadFile(src)
				if err != nil {
					return err
				}
				inputs.Sources = append(inputs.Sources, *f)
			}

			exec := httpexec.New(httpexec.Options{Logger: &logger})
			orch := pipeline.New(pipeline.Options{
				Uploads:  staging.NewStager(client, exec, logger),
				Admitter: admission.NewController(client, logger),
				Launcher: jobs.NewLauncher(client, logger),
				Poller:   jobs.NewPoller(client, logger),
				Warmer:   client,
				Logger:   logger,
			})

			result, err := orch.Run(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.OutputURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "voice", "Job kind: voice, lipsync or faceswap")
	cmd.Flags().StringVar(&script, "script", "", "Script text to synthesize")
	cmd.Flags().StringVar(&refAudio, "ref-audio", "", "Reference audio file")
	cmd.Flags().StringVar(&target, "target", "", "Target media file")
	cmd.Flags().StringArrayVar(&sources, "source", nil, "Source image file (repeatable)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Synthesis speed override")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Synthesis temperature override")

	return cmd
}

func loadFile(path string) (*staging.File, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &staging.File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
