package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/akozyrev/hr-intake-bot/internal/funnel"
	"github.com/akozyrev/hr-intake-bot/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// chatContactMethod marks records produced through the terminal funnel.
const chatContactMethod = "CLI"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Walk through the intake funnel in the terminal, without telegram",
	Run: func(_ *cobra.Command, _ []string) {
		chat()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// chat drives the same state machine as the bot, rendering fixed-choice
// prompts with promptui. Useful for trying out the catalog and the matching
// thresholds before pointing a real bot at users.
func chat() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), viper.GetString("log-file"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	machine, _, err := buildFunnel(ctx, config, chatContactMethod, logger)
	if err != nil {
		logger.Fatal("building the intake funnel", zap.Error(err))
	}

	name := os.Getenv("USER")
	if name == "" {
		name = "кандидат"
	}
	user := funnel.User{ID: 0, Name: name, FullName: name}

	sess := &funnel.Session{State: funnel.StateStart}
	replies := machine.Start(sess, user)

	for {
		printReplies(replies)

		input, err := readInput(lastKeyboard(replies))
		if err != nil {
			// promptui returns an error on interrupt; treat it as exit.
			fmt.Println("exiting")
			return
		}

		replies = machine.Handle(ctx, sess, user, input)

		// Completion or decline clears the session back to the start state.
		if sess.State == funnel.StateStart {
			printReplies(replies)
			return
		}
	}
}

func readInput(keyboard funnel.Keyboard) (string, error) {
	var items []string
	switch keyboard {
	case funnel.KeyboardAge:
		items = funnel.AgeBrackets
	case funnel.KeyboardCountry:
		items = funnel.CountryChoices
	case funnel.KeyboardYesNo:
		items = funnel.ConsentChoices
	}

	if items != nil {
		prompt := promptui.Select{Label: "Выберите вариант", Items: items}
		_, choice, err := prompt.Run()
		return choice, err
	}

	prompt := promptui.Prompt{Label: ">"}
	return prompt.Run()
}

func printReplies(replies []funnel.Reply) {
	for _, reply := range replies {
		fmt.Println(stripTags(reply.Text))
		fmt.Println()
	}
}

func lastKeyboard(replies []funnel.Reply) funnel.Keyboard {
	if len(replies) == 0 {
		return funnel.KeyboardNone
	}
	return replies[len(replies)-1].Keyboard
}

var tagStripper = strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "")

func stripTags(s string) string {
	return tagStripper.Replace(s)
}
