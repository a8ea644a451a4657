package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ftpkit/fxp"
)

var (
	flagSource   string
	flagDest     string
	flagSSCN     bool
	flagInsecure bool
	flagDebug    bool
	flagTimeout  time.Duration
	flagCert     string
	flagKey      string
)

var rootCmd = &cobra.Command{
	Use:           "fxpcp",
	Short:         "Server-to-server FTP (FXP) transfer tool",
	Long:          "fxpcp coordinates direct server-to-server file transfers over FTP/FTPS.\nFile bytes flow between the two servers; this tool only drives the control channels.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var copyCmd = &cobra.Command{
	Use:   "copy <source-path> <dest-path>",
	Short: "Copy a file directly from the source server to the destination server",
	Args:  cobra.ExactArgs(2),
	RunE:  runCopy,
}

var listCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List a directory on the source server via STAT -l",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show the source server's FEAT response",
	Args:  cobra.NoArgs,
	RunE:  runFeatures,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSource, "source", "", "source server URL (ftp[s]://user:pass@host:port)")
	rootCmd.PersistentFlags().StringVar(&flagDest, "dest", "", "destination server URL")
	rootCmd.PersistentFlags().BoolVar(&flagSSCN, "sscn", false, "negotiate with SSCN instead of CPSV")
	rootCmd.PersistentFlags().BoolVar(&flagInsecure, "insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log every FTP command and reply")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "per-command timeout")
	rootCmd.PersistentFlags().StringVar(&flagCert, "cert", "", "client certificate file (PEM)")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "client key file (PEM)")

	rootCmd.AddCommand(copyCmd, listCmd, featuresCmd)
}

// endpoint is one parsed server URL.
type endpoint struct {
	addr   string
	user   string
	pass   string
	secure bool
}

func parseEndpoint(raw string) (*endpoint, error) {
	if raw == "" {
		return nil, errors.New("server URL required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	ep := &endpoint{user: "anonymous", pass: "anonymous@"}

	switch strings.ToLower(u.Scheme) {
	case "ftp":
	case "ftps":
		ep.secure = true
	default:
		return nil, fmt.Errorf("unsupported scheme %q (want ftp or ftps)", u.Scheme)
	}

	port := u.Port()
	if port == "" {
		port = "21"
	}
	ep.addr = net.JoinHostPort(u.Hostname(), port)

	if u.User != nil {
		ep.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			ep.pass = pw
		}
	}

	return ep, nil
}

// connect dials and authenticates one endpoint.
func connect(ep *endpoint) (*fxp.Session, error) {
	opts := []fxp.Option{fxp.WithTimeout(flagTimeout)}

	if flagDebug {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, fxp.WithLogger(logger))
	}
	if flagInsecure {
		opts = append(opts, fxp.WithInsecureTLS())
	}
	if flagCert != "" && flagKey != "" {
		opts = append(opts, fxp.WithClientCert(flagCert, flagKey))
	}

	s, err := fxp.Dial(ep.addr, opts...)
	if err != nil {
		return nil, err
	}

	if ep.secure {
		if err := s.Secure().Negotiate(fxp.AuthTLS, ep.user, ep.pass); err != nil {
			_ = s.Quit()
			return nil, err
		}
	} else if err := s.Login(ep.user, ep.pass); err != nil {
		_ = s.Quit()
		return nil, err
	}

	return s, nil
}

func runCopy(cmd *cobra.Command, args []string) error {
	srcEP, err := parseEndpoint(flagSource)
	if err != nil {
		return fmt.Errorf("--source: %w", err)
	}
	dstEP, err := parseEndpoint(flagDest)
	if err != nil {
		return fmt.Errorf("--dest: %w", err)
	}

	src, err := connect(srcEP)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer src.Quit()

	dst, err := connect(dstEP)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	defer dst.Quit()

	coord := fxp.NewCoordinator(src, dst)

	sourcePath, destPath := args[0], args[1]
	color.Cyan("copying %s -> %s", sourcePath, destPath)

	var result *fxp.TransferResult
	if flagSSCN {
		result, err = coord.TransferSSCN(context.Background(), sourcePath, destPath)
	} else {
		result, err = coord.TransferCPSV(context.Background(), sourcePath, destPath)
	}

	if result != nil {
		printResult(result)
	}

	if err != nil {
		var te *fxp.TransferError
		if errors.As(err, &te) && te.Side == fxp.SideDestination {
			color.Yellow("destination failed; a partial file may remain at %s", destPath)
		}
		return err
	}

	color.Green("transfer complete")
	return nil
}

func printResult(result *fxp.TransferResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Side", "Code", "Reply")

	if result.Source != nil {
		_ = table.Append([]string{"source", fmt.Sprintf("%d", result.Source.Code), result.Source.Text})
	}
	if result.Destination != nil {
		_ = table.Append([]string{"destination", fmt.Sprintf("%d", result.Destination.Code), result.Destination.Text})
	}

	_ = table.Render()
}

func runList(cmd *cobra.Command, args []string) error {
	ep, err := parseEndpoint(flagSource)
	if err != nil {
		return fmt.Errorf("--source: %w", err)
	}

	s, err := connect(ep)
	if err != nil {
		return err
	}
	defer s.Quit()

	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	reply, err := s.FastList(path)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Entry")
	for _, line := range reply.Lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "213") {
			continue
		}
		_ = table.Append([]string{line})
	}
	_ = table.Render()

	return nil
}

func runFeatures(cmd *cobra.Command, args []string) error {
	ep, err := parseEndpoint(flagSource)
	if err != nil {
		return fmt.Errorf("--source: %w", err)
	}

	s, err := connect(ep)
	if err != nil {
		return err
	}
	defer s.Quit()

	reply, err := s.ExtendedFeatures()
	if err != nil {
		return err
	}

	fmt.Println(reply.String())
	return nil
}
