package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/importer"
	"github.com/ehr/tracker/internal/tracker/preheat"
)

var errInvalidPayload = errors.New("payload has validation errors")

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a payload against a preheat fixture without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixturePath, _ := cmd.Flags().GetString("preheat")
			payloadPath, _ := cmd.Flags().GetString("payload")
			strategy, _ := cmd.Flags().GetString("strategy")
			mode, _ := cmd.Flags().GetString("validation-mode")
			verbose, _ := cmd.Flags().GetBool("verbose")

			params, err := importer.ParseParams(strategy, "", mode, "true")
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger := newLogger(cmd.ErrOrStderr(), "development", level)

			return runValidate(cmd, fixturePath, payloadPath, params, logger)
		},
	}
	cmd.Flags().String("preheat", "", "YAML preheat fixture (required)")
	cmd.Flags().String("payload", "", "Tracker payload, JSON or YAML (required)")
	cmd.Flags().String("strategy", "", "Import strategy (default CREATE_AND_UPDATE)")
	cmd.Flags().String("validation-mode", "", "FULL or FAIL_FAST (default FULL)")
	cmd.Flags().BoolP("verbose", "v", false, "Log every finding")
	cmd.MarkFlagRequired("preheat")
	cmd.MarkFlagRequired("payload")
	return cmd
}

// runValidate prints the import report and fails when it has errors, so the
// command can gate payloads in scripts.
func runValidate(cmd *cobra.Command, fixturePath, payloadPath string, params importer.Params, logger zerolog.Logger) error {
	f, err := os.Open(fixturePath)
	if err != nil {
		return err
	}
	defer f.Close()

	fixture, err := preheat.LoadFixture(f)
	if err != nil {
		return err
	}
	p, err := fixture.Preheat()
	if err != nil {
		return err
	}

	payload, err := readPayload(payloadPath)
	if err != nil {
		return err
	}

	svc := importer.NewService(importer.StaticSource{Preheat: p}, nil, logger)
	report, err := svc.Import(cmd.Context(), fixture.User, payload, params)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Status == importer.StatusError {
		return fmt.Errorf("%w: %d error(s)", errInvalidPayload, len(report.ValidationReport.Errors))
	}
	return nil
}

func readPayload(path string) (*tracker.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodePayload(f, filepath.Ext(path))
}

func decodePayload(r io.Reader, ext string) (*tracker.Payload, error) {
	var p tracker.Payload
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode YAML payload: %w", err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode JSON payload: %w", err)
		}
	}
	return &p, nil
}
