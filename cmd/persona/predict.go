package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/persona/internal/model"
)

func newPredictCmd(a *app) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "predict [text...]",
		Short: "Predict a type for each text argument, or for each stdin line",
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := args
			if len(texts) == 0 {
				lines, err := readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
				texts = lines
			}

			eng, bundle, err := loadEngine(a.cfg)
			if err != nil {
				return err
			}
			defer bundle.Close()

			preds, err := eng.PredictBatch(texts)
			if err != nil {
				return err
			}
			return writePredictions(cmd.OutOrStdout(), preds, detailed)
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "print one JSON object per text with class, confidence and kept tokens")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}

func writePredictions(w io.Writer, preds []model.Prediction, detailed bool) error {
	if !detailed {
		for _, p := range preds {
			if _, err := fmt.Fprintln(w, p.Label); err != nil {
				return err
			}
		}
		return nil
	}
	enc := json.NewEncoder(w)
	for _, p := range preds {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}
