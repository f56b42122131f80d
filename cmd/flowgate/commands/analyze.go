package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ineyio/flowgate"
	"github.com/ineyio/flowgate/gateway"
)

var (
	analyzeProvider string
	analyzeImages   []string
	analyzeSystem   string
	analyzeEvents   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Extract an attack flow from an article",
	Long: `Stream an attack-flow analysis of an article to stdout.

The article is read from the given file, or from stdin when no file or
"-" is given. Images attached with --image are analyzed first and their
description is added to the prompt.

Examples:
  flowgate analyze report.txt
  flowgate analyze report.txt --provider openai --image diagram.png
  cat report.txt | flowgate analyze --events`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeProvider, "provider", "p", "", "Backend id or alias (default: resolved default)")
	analyzeCmd.Flags().StringSliceVarP(&analyzeImages, "image", "i", nil, "Image files to analyze alongside the article")
	analyzeCmd.Flags().StringVar(&analyzeSystem, "system", "", "Override the system prompt")
	analyzeCmd.Flags().BoolVar(&analyzeEvents, "events", false, "Print raw wire events instead of text")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rt, err := setup(nil)
	if err != nil {
		return err
	}

	text, err := readArticle(args)
	if err != nil {
		return err
	}
	images, err := loadImages(analyzeImages)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := gateway.New(rt.registry,
		gateway.WithIdleTimeout(rt.config.IdleTimeout),
		gateway.WithRequestTimeout(rt.config.RequestTimeout),
		gateway.WithLogger(rt.logger),
	)

	req := gateway.AnalyzeRequest{
		Provider: analyzeProvider,
		Text:     text,
		System:   analyzeSystem,
		Images:   images,
	}

	out := cmd.OutOrStdout()
	var sink flowgate.Sink = textSink(out, cmd.ErrOrStderr())
	if analyzeEvents {
		sink = eventSink(out)
	}

	streamErr := gw.Analyze(ctx, req, sink)
	if !analyzeEvents {
		fmt.Fprintln(out)
	}
	return streamErr
}

// textSink prints content to out and progress and errors to status.
func textSink(out, status io.Writer) flowgate.Sink {
	return flowgate.SinkFunc(func(ev flowgate.StreamEvent) error {
		switch ev.Type {
		case flowgate.EventContentDelta:
			_, err := io.WriteString(out, ev.Text)
			return err
		case flowgate.EventProgress:
			fmt.Fprintf(status, "[%s] %s\n", ev.Stage, ev.Message)
		case flowgate.EventError:
			fmt.Fprintf(status, "error: %s\n", ev.Message)
		}
		return nil
	})
}

// eventSink prints each event in its wire form, one per line.
func eventSink(out io.Writer) flowgate.Sink {
	return flowgate.SinkFunc(func(ev flowgate.StreamEvent) error {
		data, err := ev.Encode()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err
	})
}

func readArticle(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read article: %w", err)
	}
	return string(data), nil
}

func loadImages(paths []string) ([]flowgate.Image, error) {
	images := make([]flowgate.Image, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if i := strings.IndexByte(mediaType, ';'); i >= 0 {
			mediaType = mediaType[:i]
		}
		images = append(images, flowgate.Image{
			Base64Data: base64.StdEncoding.EncodeToString(data),
			MediaType:  mediaType,
		})
	}
	return images, nil
}
