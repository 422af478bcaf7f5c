package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanq16/mtdown/internal/config"
	mthttp "github.com/tanq16/mtdown/internal/downloaders/http"
	"github.com/tanq16/mtdown/internal/output"
	"github.com/tanq16/mtdown/internal/scheduler"
	"github.com/tanq16/mtdown/internal/utils"
)

var (
	outputPath    string
	configPath    string
	connections   int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	token         string
	noProbe       bool
	overwrite     bool
	debug         bool
	logFile       string

	cfg config.Config
)

var MTDownVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "mtdown [URL]",
	Short: "mtdown is a multi-threaded segmented downloader",
	Long: `mtdown splits a download into byte ranges fetched in parallel, probing
the server first for how many connections it accepts.

Press p to pause or resume and q to quit while a download runs.`,
	Version:           MTDownVersion,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runJob(cmd.Context(), "http", args[0], nil)
	},
}

func Execute() {
	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newS3Cmd())
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the source if not provided)")
	flags.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flags.IntVarP(&connections, "connections", "c", utils.DefaultMaxThreads, "Maximum number of parallel connections (1-32)")
	flags.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	flags.StringVar(&token, "token", "", "Bearer token sent with every request")
	flags.BoolVar(&noProbe, "no-probe", false, "Skip probing the server for its connection limit")
	flags.BoolVar(&overwrite, "overwrite", false, "Overwrite the output file instead of picking a new name")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&logFile, "log-file", "", "Write JSON logs to this file")
}

// setup loads the config file and environment, then lets explicitly set
// flags win over both.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("connections") {
		loaded.Threads = connections
	}
	if flags.Changed("timeout") {
		loaded.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		loaded.HTTP.KeepAlive = kaTimeout
	}
	if flags.Changed("user-agent") {
		loaded.HTTP.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		loaded.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		loaded.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		loaded.HTTP.ProxyPassword = proxyPassword
	}
	if loaded.HTTP.Headers == nil {
		loaded.HTTP.Headers = make(map[string]string)
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		loaded.HTTP.Headers[k] = v
	}
	if flags.Changed("token") {
		loaded.HTTP.Token = token
	}
	if noProbe {
		loaded.Probe = false
	}
	if overwrite {
		loaded.Overwrite = true
	}
	if debug {
		loaded.Debug = true
	}
	if flags.Changed("log-file") {
		loaded.LogFile = logFile
	}
	splitProxyAuth(&loaded.HTTP)
	if err := loaded.Validate(); err != nil {
		return err
	}
	if err := utils.InitLogger(loaded.Debug, loaded.LogFile); err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}
	cfg = loaded
	log.Debug().Str("op", "cmd/setup").Msgf("config loaded: %d threads, probe %t", cfg.Threads, cfg.Probe)
	return nil
}

// splitProxyAuth moves credentials embedded in the proxy URL into the
// username and password fields.
func splitProxyAuth(h *config.HTTPConfig) {
	parsedProxy, err := u.Parse(h.Proxy)
	if err != nil || parsedProxy.User == nil || h.ProxyUsername != "" {
		return
	}
	h.ProxyUsername = parsedProxy.User.Username()
	if password, set := parsedProxy.User.Password(); set {
		h.ProxyPassword = password
	}
	parsedProxy.User = nil
	h.Proxy = parsedProxy.String()
}

func runJob(ctx context.Context, jobType, url string, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	job := utils.Job{
		JobType:          jobType,
		URL:              url,
		OutputPath:       outputPath,
		Connections:      cfg.Threads,
		Overwrite:        cfg.Overwrite,
		HTTPClientConfig: cfg.HTTPClientConfig(),
		Metadata:         metadata,
	}
	opts := scheduler.Options{
		Engine: mthttp.Options{
			Probe:         cfg.Probe,
			ProbeTimeout:  cfg.ProbeTimeout,
			ProbeCooldown: cfg.ProbeCooldown,
			Retry:         cfg.RetryPolicy(),
			PollInterval:  cfg.PollInterval,
			CancelGrace:   cfg.CancelGrace,
		},
		Interactive: output.IsTerminal(),
	}
	log.Debug().Str("op", "cmd/run").Msgf("starting %s job for %s", jobType, url)
	err := scheduler.Run(ctx, job, opts)
	if errors.Is(err, mthttp.ErrCancelled) {
		return errors.New("download cancelled")
	}
	return err
}
