package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MaheshReddy-s/emrcore"
)

func getCmd(a *app) *cobra.Command {
	var (
		meta    bool
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a resource and print its unwrapped data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := headerOptions(headers)
			if err != nil {
				return err
			}

			resp, err := a.client.GetWithMeta(cmd.Context(), args[0], opts...)
			if err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			if meta {
				fmt.Fprintf(out, "status: %d\n", resp.Status)
				for _, name := range []string{"Content-Type", "X-Request-Id"} {
					if v := resp.Header.Get(name); v != "" {
						fmt.Fprintf(out, "%s: %s\n", name, v)
					}
				}
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
				_, err = out.Write(resp.Data)
				return err
			}
			pretty.WriteByte('\n')
			_, err = pretty.WriteTo(out)
			return err
		},
	}

	cmd.Flags().BoolVar(&meta, "meta", false, "print status and selected headers")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header as Name:Value")
	return cmd
}

func headerOptions(raw []string) ([]emrcore.RequestOption, error) {
	opts := make([]emrcore.RequestOption, 0, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want Name:Value", h)
		}
		opts = append(opts, emrcore.WithHeader(name, strings.TrimSpace(value)))
	}
	return opts, nil
}

// describe appends field errors, sorted by field, to validation failures.
func describe(err error) error {
	apiErr := emrcore.NormalizeError(err)
	if !apiErr.HasFieldErrors() {
		return apiErr
	}
	fields := make([]string, 0, len(apiErr.FieldErrors))
	for field := range apiErr.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var details strings.Builder
	for _, field := range fields {
		for _, problem := range apiErr.FieldErrors[field] {
			fmt.Fprintf(&details, "\n  %s: %s", field, problem)
		}
	}
	return fmt.Errorf("%w%s", apiErr, details.String())
}
