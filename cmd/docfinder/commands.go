package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/config"
	"github.com/xxxsen/docfinder/internal/loader"
	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/jwt"
	"github.com/xxxsen/docfinder/internal/service"
	"github.com/xxxsen/docfinder/internal/tui"
)

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		chunkSize   int
		overlap     int
		storePrefix string
	)
	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "load, chunk, embed and index documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			useStore := cmd.Flags().Changed("store-prefix")
			if len(args) == 0 && !useStore {
				return fmt.Errorf("at least one path or --store-prefix is required")
			}
			a, err := newApp(*configPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var docs []model.Document
			var loadErrs []error
			if len(args) > 0 {
				loaded, err := loader.LoadPaths(ctx, args)
				docs = append(docs, loaded...)
				loadErrs = append(loadErrs, err)
			}
			if useStore {
				if a.store == nil {
					return fmt.Errorf("--store-prefix needs file_store in config")
				}
				loaded, err := loader.LoadStore(ctx, a.store, storePrefix)
				docs = append(docs, loaded...)
				loadErrs = append(loadErrs, err)
			}
			loadErr := errors.Join(loadErrs...)
			if len(docs) == 0 {
				if loadErr != nil {
					return loadErr
				}
				return fmt.Errorf("no supported documents found")
			}
			report, err := a.rag.Ingest(ctx, docs, chunkSize, overlap)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			return errors.Join(loadErr, report.Err())
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "words per chunk, 0 uses retrieval.chunk_size")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "words shared by neighbouring chunks")
	cmd.Flags().StringVar(&storePrefix, "store-prefix", "", "also ingest file store objects under this prefix")
	return cmd
}

func printReport(w io.Writer, report *service.IngestReport) {
	for _, doc := range report.Documents {
		status := "ok"
		if doc.Error != "" {
			status = "failed: " + doc.Error
		} else if len(doc.Failures) > 0 {
			status = fmt.Sprintf("%d chunk(s) failed", len(doc.Failures))
		}
		fmt.Fprintf(w, "%s\tchunks=%d indexed=%d removed=%d\t%s\n", doc.DocumentID, doc.Chunks, doc.Indexed, doc.Removed, status)
		for _, f := range doc.Failures {
			hint := ""
			if f.Transient {
				hint = " (retry later)"
			}
			fmt.Fprintf(w, "  %s: %s%s\n", f.ChunkID, f.Error, hint)
		}
	}
	fmt.Fprintf(w, "documents=%d chunks=%d indexed=%d failed=%d\n", len(report.Documents), report.Chunks, report.Indexed, report.Failed)
}

// ingestDocs loads dir into the index before a query or chat session.
func ingestDocs(ctx context.Context, a *app, dir string) error {
	if dir == "" {
		return nil
	}
	docs, err := loader.LoadPaths(ctx, []string{dir})
	if len(docs) == 0 {
		return err
	}
	report, ingestErr := a.rag.Ingest(ctx, docs, 0, 0)
	if ingestErr != nil {
		return ingestErr
	}
	return errors.Join(err, report.Err())
}

// generationFlags collects per-call generation settings shared by query and chat.
type generationFlags struct {
	model       string
	temperature float64
	topP        float64
	maxTokens   int
}

func (f *generationFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "generation model, empty uses the configured one")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "sampling temperature in [0, 2]")
	cmd.Flags().Float64Var(&f.topP, "top-p", 0, "nucleus sampling in (0, 1]")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "answer token limit, 0 uses the configured one")
}

func (f *generationFlags) override(cmd *cobra.Command) (ai.Override, error) {
	o := ai.Override{Model: f.model, MaxTokens: f.maxTokens}
	if cmd.Flags().Changed("temperature") {
		v := f.temperature
		o.Temperature = &v
	}
	if cmd.Flags().Changed("top-p") {
		v := f.topP
		o.TopP = &v
	}
	return o, o.Validate()
}

func newQueryCmd(configPath *string) *cobra.Command {
	var (
		docs string
		topK int
		gen  generationFlags
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "answer one question from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			override, err := gen.override(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(*configPath, func(cfg *config.Config) {
				if topK > 0 {
					cfg.Retrieval.TopK = topK
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := ingestDocs(ctx, a, docs); err != nil {
				return err
			}
			pc, answer, err := a.rag.Query(ctx, args[0], override)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderAnswer(args[0], pc, answer))
			return nil
		},
	}
	cmd.Flags().StringVar(&docs, "docs", "", "directory to ingest before answering")
	cmd.Flags().IntVar(&topK, "top-k", 0, "chunks to retrieve, 0 uses retrieval.top_k")
	gen.bind(cmd)
	return cmd
}

func newChatCmd(configPath *string) *cobra.Command {
	var (
		docs string
		gen  generationFlags
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "interactive question loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			override, err := gen.override(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(*configPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := ingestDocs(ctx, a, docs); err != nil {
				return err
			}
			info, err := a.rag.Collection(ctx)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("docfinder  %s  %d chunks", info.Name, info.Count)
			_, err = tea.NewProgram(tui.New(ctx, a.rag, title, override), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&docs, "docs", "", "directory to ingest before the session")
	gen.bind(cmd)
	return cmd
}

func newModelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "list models offered by the configured generators",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			models, err := a.rag.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		scope   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token for the http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not set")
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.Server.JWTTTLHours) * time.Hour
			}
			token, err := jwt.GenerateToken(subject, scope, []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().StringVar(&scope, "scope", "", "comma separated scopes: read, write; empty grants all")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 uses server.jwt_ttl_hours")
	return cmd
}
