package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"GiftSend/internal/extractor"
)

var extractFormat string

func runExtract(cmd *cobra.Command, args []string) error {
	path := args[0]

	contentType := extractor.ContentTypeFor(path)
	if contentType == "" {
		return fmt.Errorf("unsupported file extension: %s", path)
	}

	res, err := extractor.ExtractFile(path, contentType)
	if err != nil {
		return err
	}

	return writeResult(cmd.OutOrStdout(), res, extractFormat)
}

func writeResult(w io.Writer, res extractor.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (use json or yaml)", format)
}
