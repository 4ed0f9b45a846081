package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/saltlevel/pkg/locale"
)

func NewLanguageCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "language [tag]",
		GroupID: gNotify,
		Short:   "Show or set the notification and portal language",
		Long: fmt.Sprintf(`Show or set the language used for notifications and the setup portal.

Supported: %s.`, strings.Join(locale.Supported(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				lang, err := apiClient.GetLanguage()
				if err != nil {
					return err
				}
				cmd.Println(lang)
				return nil
			}

			lang, err := apiClient.SetLanguage(args[0])
			if err != nil {
				return fmt.Errorf("failed to set language: %v", err)
			}
			logrus.Infof("language set to %s", lang)
			return nil
		},
	}
}
