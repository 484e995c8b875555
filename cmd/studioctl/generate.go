package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"photostudio/internal/generation"
	"photostudio/internal/imagecodec"
	"photostudio/internal/infra"
	"photostudio/internal/providers/genai"
	"photostudio/internal/slots"
	"photostudio/internal/storage"
	"photostudio/internal/studio"
	"photostudio/internal/templates"
)

type generateOptions struct {
	primary     string
	references  []string
	instruction string
	templateID  string
	outDir      string
	timeout     time.Duration
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one photo per style reference (or one without references)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.primary, "primary", "", "subject photo")
	cmd.Flags().StringSliceVar(&opts.references, "reference", nil, "style reference photo (repeatable, up to 9)")
	cmd.Flags().StringVar(&opts.instruction, "instruction", "", "style instruction")
	cmd.Flags().StringVar(&opts.templateID, "template", "", "built-in template id used as the instruction")
	cmd.Flags().StringVar(&opts.outDir, "out", "out", "output directory")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall time limit")
	_ = cmd.MarkFlagRequired("primary")
	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, opts *generateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(opts.references) > slots.ReferenceCapacity {
		return fmt.Errorf("at most %d reference photos are supported, got %d", slots.ReferenceCapacity, len(opts.references))
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv).Level(zerolog.WarnLevel)

	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.GeminiImageModel,
		TextModel:  cfg.GeminiTextModel,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	catalog, err := templates.Default()
	if err != nil {
		return err
	}
	store, err := storage.NewFileStore(opts.outDir)
	if err != nil {
		return err
	}

	session, err := studio.NewSession("studioctl", studio.Options{
		Codec:       imagecodec.New(imagecodec.Options{MaxEdge: cfg.ImageMaxEdge, MaxBytes: cfg.MaxUploadBytes, MaxPixels: cfg.ImageMaxPixels}),
		Generator:   client,
		Templates:   catalog,
		Logger:      logger,
		Concurrency: cfg.GenerationWorkers,
		CallTimeout: cfg.GenerationTimeout,
	})
	if err != nil {
		return err
	}

	if err := uploadFiles(ctx, session, studio.ModulePrimary, []string{opts.primary}); err != nil {
		return err
	}
	if len(opts.references) > 0 {
		for range len(opts.references) - 1 {
			session.AddSlot()
		}
		if err := uploadFiles(ctx, session, studio.ModuleReference, opts.references); err != nil {
			return err
		}
	}
	if opts.templateID != "" {
		if _, err := session.ApplyTemplate(opts.templateID); err != nil {
			return fmt.Errorf("template %q: %w", opts.templateID, err)
		}
	} else {
		session.SetInstruction(opts.instruction)
	}

	run, err := session.Generate(ctx)
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := run.Wait(waitCtx); err != nil {
		return fmt.Errorf("waiting for results: %w", err)
	}

	batch := session.Batch()
	manifest := storage.Manifest{
		Instruction: batch.Tasks[0].Instruction,
		Primary:     []string{filepath.Base(opts.primary)},
		Model:       client.ImageModel(),
	}
	for _, ref := range opts.references {
		manifest.References = append(manifest.References, filepath.Base(ref))
	}
	succeeded := 0
	for i, task := range batch.Tasks {
		entry := storage.ManifestEntry{TaskID: task.ID, Status: string(task.Status), Error: task.Error}
		if task.Status == generation.StatusSucceeded {
			d, err := session.Download(ctx, i)
			if err != nil {
				entry.Status = string(generation.StatusFailed)
				entry.Error = err.Error()
			} else if key, err := store.Write(ctx, d.Filename, d.Data); err != nil {
				return err
			} else {
				entry.File = key
				succeeded++
			}
		}
		manifest.Results = append(manifest.Results, entry)
		fmt.Fprintf(out, "%-8s %-10s %s\n", entry.TaskID, entry.Status, firstNonEmpty(entry.File, entry.Error))
	}
	if _, err := store.WriteManifest(ctx, manifest); err != nil {
		return err
	}
	if succeeded == 0 {
		return errors.New("no photo was generated")
	}
	fmt.Fprintf(out, "%d of %d photos written to %s\n", succeeded, len(batch.Tasks), store.Root())
	return nil
}

func uploadFiles(ctx context.Context, session *studio.Session, module studio.Module, paths []string) error {
	readers := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		readers = append(readers, f)
	}
	if err := session.Upload(ctx, module, 0, readers); err != nil {
		return fmt.Errorf("%s images: %w", module, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
