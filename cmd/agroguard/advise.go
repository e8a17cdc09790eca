package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agroguard/agroguard/pkg/models"
)

func newAdviseCmd(configPath *string) *cobra.Command {
	var (
		data    string
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "advise <spoilage|price|crop-plan|chat>",
		Short: "Run one advisory request in-process and print the JSON result",
		Long: "Run one advisory request in-process. The request is read from --data,\n" +
			"or from stdin when --data is omitted or \"-\".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := models.ParseUseCase(args[0])
			if err != nil {
				return err
			}

			var body io.Reader = strings.NewReader(data)
			if data == "" || data == "-" {
				body = cmd.InOrStdin()
			}
			req, err := decodeRequest(uc, body)
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("invalid request: %w", err)
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			result, d := a.gateway.Handle(ctx, req)

			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "source=%s reason=%s provider=%s model=%s latency=%s\n",
					d.Source, d.Reason, d.Provider, d.Model, d.Latency.Round(time.Millisecond))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "request JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "give up and fall back after this long")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print decision metadata to stderr")
	return cmd
}

func decodeRequest(uc models.UseCase, r io.Reader) (models.Request, error) {
	var req models.Request
	switch uc {
	case models.UseCaseSpoilage:
		req = &models.SpoilageRequest{}
	case models.UseCasePrice:
		req = &models.PriceRequest{}
	case models.UseCaseCropPlan:
		req = &models.CropPlanRequest{}
	default:
		req = &models.ChatRequest{}
	}
	if err := json.NewDecoder(r).Decode(req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return req.Normalize(), nil
}
