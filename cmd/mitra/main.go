package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mitralabs/mitra/pkg/assistant"
	"github.com/mitralabs/mitra/pkg/config"
	"github.com/mitralabs/mitra/pkg/logger"
	"github.com/mitralabs/mitra/pkg/server"
)

var (
	log *logrus.Entry

	// Global options
	configPath string

	// Serve command options
	port int

	// Invocations command options
	limit int
)

func init() {
	log = logger.WithName("cli")
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "mitra",
		Short: "MCP tool-routing assistant",
		Long: `mitra - an assistant that routes natural-language queries to tools
exposed by MCP servers.

It connects to the configured servers, aggregates their tools into a single
catalog, and uses a language model to decide which tool (if any) answers
each query.`,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")

	var askCmd = &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single query",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}

	var chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Run:   runChat,
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Run:   runServe,
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")

	var toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "List tools discovered from the configured servers",
		Run:   runTools,
	}

	var serversCmd = &cobra.Command{
		Use:   "servers",
		Short: "Show the status of the configured servers",
		Run:   runServers,
	}

	var resourcesCmd = &cobra.Command{
		Use:   "resources [server uri]",
		Short: "List resources, or read one by server and URI",
		Args:  cobra.RangeArgs(0, 2),
		Run:   runResources,
	}

	var invocationsCmd = &cobra.Command{
		Use:   "invocations",
		Short: "Show recent tool invocations from the audit log",
		Run:   runInvocations,
	}
	invocationsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show")

	rootCmd.AddCommand(askCmd, chatCmd, serveCmd, toolsCmd, serversCmd, resourcesCmd, invocationsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the log level
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.ConfigureFromString(cfg.Logging.Level); err != nil {
		log.WithError(err).Warn("Invalid log level in config, keeping current level")
	}
	return cfg
}

// startAssistant builds and initializes the assistant, exiting on failure
func startAssistant(ctx context.Context, cfg *config.Config) *assistant.Assistant {
	a, err := assistant.New(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to build assistant")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := a.Initialize(ctx); err != nil {
		log.WithError(err).Error("Failed to initialize assistant")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

func runAsk(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")
	log.WithFields(logrus.Fields{
		"command": "ask",
		"query":   query,
	}).Info("Executing command")

	ctx := context.Background()
	cfg := loadConfig()
	a := startAssistant(ctx, cfg)
	defer a.Close()

	resp, err := a.ProcessQuery(ctx, query)
	if err != nil {
		log.WithError(err).Error("Query failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(resp.Answer)
	if resp.ToolUsed != "" {
		fmt.Printf("\n[tool: %s @ %s]\n", resp.ToolUsed, resp.ServerID)
	}
	if resp.Failure != nil {
		fmt.Printf("[tool failure: %s]\n", resp.Failure.Error())
	}
}

func runChat(cmd *cobra.Command, args []string) {
	log.WithField("command", "chat").Info("Executing command")

	ctx := context.Background()
	cfg := loadConfig()
	a := startAssistant(ctx, cfg)
	defer a.Close()

	fmt.Printf("Connected. %d tools available. Type 'exit' to quit.\n", len(a.Tools()))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			break
		}

		resp, err := a.ProcessQuery(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Println(resp.Answer)
		if resp.ToolUsed != "" {
			fmt.Printf("[tool: %s @ %s]\n", resp.ToolUsed, resp.ServerID)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) {
	log.WithField("command", "serve").Info("Executing command")

	ctx := context.Background()
	cfg := loadConfig()
	if port != 0 {
		cfg.Server.Port = port
	}

	a := startAssistant(ctx, cfg)
	defer a.Close()

	if err := server.Start(cfg, a); err != nil {
		log.WithError(err).Error("Server failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTools(cmd *cobra.Command, args []string) {
	log.WithField("command", "tools").Info("Executing command")

	ctx := context.Background()
	cfg := loadConfig()
	a := startAssistant(ctx, cfg)
	defer a.Close()

	tools := a.Tools()
	if len(tools) == 0 {
		fmt.Println("No tools discovered")
		return
	}
	for _, tool := range tools {
		fmt.Printf("%s (%s)\n", tool.Name, tool.ServerID)
		if tool.Description != "" {
			fmt.Printf("    %s\n", tool.Description)
		}
		for _, name := range tool.ParamNames() {
			spec := tool.Params[name]
			requirement := ""
			if spec.Required {
				requirement = ", required"
			}
			fmt.Printf("    - %s (%s%s): %s\n", name, spec.Type, requirement, spec.Description)
		}
	}
}

func runServers(cmd *cobra.Command, args []string) {
	log.WithField("command", "servers").Info("Executing command")

	ctx := context.Background()
	cfg := loadConfig()
	a := startAssistant(ctx, cfg)
	defer a.Close()

	for _, info := range a.Sessions() {
		line := fmt.Sprintf("%-20s %-12s %d tools", info.ID, info.Status, info.ToolCount)
		if info.LastError != "" {
			line += fmt.Sprintf(" (last error: %s)", info.LastError)
		}
		fmt.Println(line)
	}
}

func runResources(cmd *cobra.Command, args []string) {
	log.WithField("command", "resources").Info("Executing command")

	ctx := context.Background()
	cfg := loadConfig()
	a := startAssistant(ctx, cfg)
	defer a.Close()

	if len(args) == 2 {
		content, err := a.ReadResource(ctx, args[0], args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(content)
		return
	}
	if len(args) == 1 {
		fmt.Fprintln(os.Stderr, "Error: reading a resource takes a server and a URI")
		os.Exit(1)
	}

	resources := a.Resources(ctx)
	if len(resources) == 0 {
		fmt.Println("No resources available")
		return
	}
	for _, res := range resources {
		fmt.Printf("%s (%s)\n", res.URI, res.ServerID)
		if res.Name != "" {
			fmt.Printf("    %s\n", res.Name)
		}
		if res.Description != "" {
			fmt.Printf("    %s\n", res.Description)
		}
	}
}

func runInvocations(cmd *cobra.Command, args []string) {
	log.WithField("command", "invocations").Info("Executing command")

	ctx := context.Background()
	cfg := loadConfig()
	if !cfg.Audit.Enabled {
		fmt.Println("Audit log is disabled")
		return
	}

	a, err := assistant.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	records, err := a.RecentInvocations(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No invocations recorded")
		return
	}
	for _, r := range records {
		fmt.Println(r.Summary())
	}
}
