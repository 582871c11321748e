package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/getserve/internal/errors"
	"github.com/vango-dev/getserve/pkg/client"
	"github.com/vango-dev/getserve/pkg/protocol"
	"github.com/vango-dev/getserve/pkg/resolve"
)

func getCmd(global *globalFlags) *cobra.Command {
	var (
		host    string
		port    int
		family  []string
		timeout time.Duration
		include bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "get [path...]",
		Short: "Fetch files from a getserve server",
		Long: `Fetch one or more paths over a single connection and write the
bodies to stdout. Resolution prefers IPv4.

A path the server does not have is reported as an error after the
remaining paths have been fetched.

Examples:
  getserve get /index.html
  getserve get --host example.org --port 9001 /a.txt /b.txt
  getserve get -i /missing.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cmd.ErrOrStderr(), global, cfg)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("port") {
				port = cfg.Port
			}
			order := resolve.ClientOrder
			if len(family) > 0 {
				if order, err = resolve.ParseOrder(family); err != nil {
					return errors.New("E101").Wrap(err)
				}
			}

			c, err := client.Dial(cmd.Context(), host, port, order,
				client.WithTimeout(timeout),
				client.WithLogger(logger))
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			var missing []string
			for _, target := range args {
				resp, err := c.Get(cmd.Context(), target)
				if err != nil {
					return errors.New("E142").
						WithDetail(fmt.Sprintf("GET %s failed.", target)).
						Wrap(err)
				}
				if include {
					fmt.Fprintf(out, "%s %d %s\n", protocol.Version, resp.Status.Code(), resp.Status.Reason())
					for _, name := range []string{protocol.HeaderContentLength, protocol.HeaderContentType} {
						fmt.Fprintf(out, "%s: %s\n", name, resp.Headers()[name])
					}
					fmt.Fprintln(out)
				}
				switch resp.Status {
				case protocol.StatusOK:
					out.Write(resp.Body)
				case protocol.StatusNotFound:
					missing = append(missing, target)
				default:
					return errors.New("E142").
						WithDetail(fmt.Sprintf("GET %s answered %d %s.", target, resp.Status.Code(), resp.Status.Reason()))
				}
			}

			if len(missing) > 0 {
				return errors.New("E143").
					WithDetail(fmt.Sprintf("Not found on %s: %s", c.Address(), strings.Join(missing, ", ")))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&host, "host", "H", "localhost", "Server host")
	f.IntVarP(&port, "port", "p", 9001, "Server port (default from getserve.json)")
	f.StringSliceVar(&family, "family", nil, "Address family order (default ipv4,ipv6)")
	f.DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Timeout for each request")
	f.BoolVarP(&include, "include", "i", false, "Print the status line and headers")
	f.StringVarP(&output, "output", "o", "", "Write bodies to a file instead of stdout")

	return cmd
}
