package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/voicedesk/internal/chat"
)

func newChatCmd() *cobra.Command {
	var showCategory bool

	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Print the canned chat reply for a message",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			msg := strings.Join(args, " ")
			category := chat.Classify(msg)
			if showCategory {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] ", category)
			}
			fmt.Fprintln(cmd.OutOrStdout(), chat.ReplyFor(category))
		},
	}

	cmd.Flags().BoolVar(&showCategory, "category", false, "prefix the reply with the matched category")
	return cmd
}
