package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/avvvet/tod-intent/internal/app"
	"github.com/avvvet/tod-intent/internal/classifier"
	"github.com/avvvet/tod-intent/internal/config"
	"github.com/avvvet/tod-intent/internal/handlers"
	"github.com/avvvet/tod-intent/internal/logging"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/tools"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// TurnRunner runs one dialog turn (allows mocking in tests)
type TurnRunner interface {
	HandleTurn(ctx context.Context, request *models.TurnRequest) (*models.TurnResponse, error)
}

var rootCmd = &cobra.Command{
	Use:   "todctl",
	Short: "todctl - operate the task-oriented dialog service locally",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Classify one user turn and print intents, dialog acts and slots",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [tool] [json-arguments]",
	Short: "Call a data retrieval tool once and print its result",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRetrieve,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the dialog service in a REPL",
	RunE:  runChat,
}

var (
	sessionFlag string
	userFlag    string
	verboseFlag bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log to stderr at debug level")
	chatCmd.Flags().StringVarP(&sessionFlag, "session", "s", "cli", "Session id")
	chatCmd.Flags().StringVarP(&userFlag, "user", "u", "cli-user", "User id")
	rootCmd.AddCommand(classifyCmd, retrieveCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if !verboseFlag {
		return zap.NewNop(), nil
	}
	return logging.New("debug", "console")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cat, err := app.Catalog(cfg)
	if err != nil {
		return err
	}
	provider, _, err := app.Provider(cfg, nil, logger)
	if err != nil {
		return err
	}

	turn := models.NewMessage(models.RoleUser, strings.Join(args, " "))
	dialog := memory.NewDialog("cli-user")
	dialog.AddMessage(turn)

	result, err := classifier.New(provider, cat, nil, logger).Classify(cmd.Context(), dialog, turn)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"intents":     result.IntentNames(),
		"dialog_acts": result.DialogActNames(),
		"slots":       result.Slots,
	})
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger, err := newLogger()
	if err != nil {
		return err
	}
	runner := app.DataTools(cfg, nil, logger)
	if runner == nil {
		return errors.New("no data source configured: set DATA_REALM_ID or DATA_BASE_URL")
	}

	arguments := "{}"
	if len(args) == 2 {
		arguments = args[1]
	}
	return retrieveWith(cmd.Context(), runner, args[0], arguments, cmd.OutOrStdout())
}

// retrieveWith runs a single tool call and prints the result envelope.
func retrieveWith(ctx context.Context, runner *tools.Runner, name, arguments string, out io.Writer) error {
	result := runner.Run(ctx, llms.ToolCall{
		ID:           "todctl",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: arguments},
	})
	if err := printJSON(out, result); err != nil {
		return err
	}
	if !result.IsSuccess() {
		return fmt.Errorf("%s failed: %s", name, result.ErrorMessage())
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cat, err := app.Catalog(cfg)
	if err != nil {
		return err
	}
	provider, _, err := app.Provider(cfg, nil, logger)
	if err != nil {
		return err
	}

	manager := memory.NewManager(memory.NewLocalStore(), logger)
	handler := handlers.NewTurnHandler(
		manager,
		classifier.New(provider, cat, nil, logger),
		handlers.NewRegistryFactory(handlers.RegistryConfig{
			Catalog:   cat,
			Provider:  provider,
			DataTools: app.DataTools(cfg, nil, logger),
			MaxTokens: cfg.MaxTokens,
			Logger:    logger,
		}),
		nil,
		logger,
	)
	return chat(cmd.Context(), handler, sessionFlag, userFlag, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chat reads user turns line by line until EOF or "exit".
func chat(ctx context.Context, runner TurnRunner, sessionID, userID string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "todctl chat (type 'exit' to quit)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		resp, err := runner.HandleTurn(ctx, &models.TurnRequest{
			SessionID:   sessionID,
			UserID:      userID,
			UserMessage: input,
		})
		if err != nil {
			return fmt.Errorf("turn failed: %w", err)
		}
		fmt.Fprintf(out, "[%s] %s\n", resp.Status, resp.UserMessage)
	}
	return scanner.Err()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
