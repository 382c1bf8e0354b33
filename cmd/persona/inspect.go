package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/persona/internal/engine/artifact"
)

func newInspectCmd(a *app) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load the model artifacts and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, bundle, err := loadEngine(a.cfg)
			if err != nil {
				return err
			}
			defer bundle.Close()
			return writeSummary(cmd.OutOrStdout(), a.cfg.Model.ManifestPath, bundle, text)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "also show how this text is tokenized")
	return cmd
}

func writeSummary(w io.Writer, path string, b *artifact.Bundle, text string) error {
	m := b.Manifest
	var sb strings.Builder
	fmt.Fprintf(&sb, "manifest:    %s (format %d)\n", path, m.FormatVersion)
	fmt.Fprintf(&sb, "max length:  %d\n", b.Preprocessor.MaxLen())
	fmt.Fprintf(&sb, "language:    %s\n", m.Language)
	fmt.Fprintf(&sb, "vocabulary:  %d tokens\n", b.Vocab.Size())
	fmt.Fprintf(&sb, "labels:      %d [%s]\n", b.Labels.Len(), strings.Join(b.Labels.Labels(), " "))
	if b.Labels.IsMBTI() {
		sb.WriteString("label set:   16 MBTI types\n")
	} else {
		sb.WriteString("label set:   custom\n")
	}
	fmt.Fprintf(&sb, "branch %-4s %s backend, %d features\n", b.CNN.Name()+":", m.CNN.Backend, b.CNN.Dim())
	fmt.Fprintf(&sb, "branch %-4s %s backend, %d features\n", b.GRU.Name()+":", m.GRU.Backend, b.GRU.Dim())
	a, bdim := b.Fusion.InDims()
	fmt.Fprintf(&sb, "fusion:      %d+%d -> %d classes\n", a, bdim, b.Fusion.NumClasses())
	if text != "" {
		kept, total := b.Preprocessor.Coverage(text)
		fmt.Fprintf(&sb, "tokens:      %s\n", strings.Join(b.Preprocessor.Tokenize(text), " "))
		fmt.Fprintf(&sb, "in vocab:    %d of %d\n", kept, total)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
