package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP API",
		Long: `Run the conversion HTTP API. Documents posted to the API are converted
without access to the server's filesystem: run: and $import references to
files fall back to the raw strategy. Pass --db to record conversion history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg := cfg.Server
			if cmd.Flags().Changed("addr") {
				srvCfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			var opts []server.Option
			if st != nil {
				defer st.Close()
				opts = append(opts, server.WithStore(st))
			}

			conv := buildConverter(cfg, logger, st, false)
			return server.New(srvCfg, conv, logger, opts...).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address (default: server.addr from config)")
	return cmd
}
