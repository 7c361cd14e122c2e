package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/bunbetsu/internal/cli"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/rag"
)

// buildQuery joins all positional args with spaces so questions work with or without quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newAskCmd(a *app) *cobra.Command {
	var (
		k          int
		candidates bool
		streamOut  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Example: `  bunbetsu ask アルミ缶の捨て方
  bunbetsu ask --candidates --output json テレビは何ごみ？
  bunbetsu ask --stream ソファはどうやって捨てる？`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := buildQuery(args)
			if query == "" {
				return errors.New("question is empty")
			}
			format, err := a.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, _, logger, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()

			out := cmd.OutOrStdout()
			switch {
			case candidates:
				return cli.WriteCandidates(out, query, svc.Search(ctx, query, k), format)
			case streamOut:
				return writeStream(ctx, out, svc, query, k)
			}
			return cli.WriteAnswer(out, svc.BlockingQuery(ctx, query, k, rag.ModeBlocking), format)
		},
	}
	cmd.Flags().IntVar(&k, "k", 0, "retrieval depth (0 = configured default)")
	cmd.Flags().BoolVar(&candidates, "candidates", false, "print the reranked candidates instead of an answer")
	cmd.Flags().BoolVar(&streamOut, "stream", false, "print the answer as it is generated")
	return cmd
}

func writeStream(ctx context.Context, out io.Writer, svc *rag.Service, query string, k int) error {
	st := svc.StreamingQuery(ctx, query, k, rag.ModeStreaming)
	defer st.Close()
	for f := range st.C() {
		switch f.Kind {
		case models.FragmentChunk:
			fmt.Fprint(out, f.Payload)
		case models.FragmentError:
			fmt.Fprintln(out, f.Payload)
			_, err := st.Result()
			return err
		}
	}
	fmt.Fprintln(out)
	return nil
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		outPath string
		k       int
	)
	cmd := &cobra.Command{
		Use:   "batch <questions.txt>",
		Short: "Answer one question per line and write a CSV report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			questions, err := cli.ReadQuestions(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("read questions: %w", err)
			}

			ctx := cmd.Context()
			svc, _, logger, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()

			out := cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				file, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer file.Close()
				out = file
			}
			bw, err := cli.NewBatchWriter(out, rag.ModeBlocking)
			if err != nil {
				return err
			}
			for i, q := range questions {
				if err := ctx.Err(); err != nil {
					_ = bw.WriteError(q, err)
					continue
				}
				res := svc.BlockingQuery(ctx, q, k, rag.ModeBlocking)
				if err := bw.Write(q, res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", i+1, len(questions), q)
			}
			return bw.Flush()
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "CSV output path (default stdout)")
	cmd.Flags().IntVar(&k, "k", 0, "retrieval depth (0 = configured default)")
	return cmd
}
