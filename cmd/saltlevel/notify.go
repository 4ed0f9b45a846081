package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/saltlevel/pkg/notify"
)

func NewNotifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notify",
		GroupID: gNotify,
		Short:   "Show or change notification channels",
		Long: `Show or change notification channels.

A low-salt alert is sent on every enabled channel. Secrets are masked in the output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := apiClient.GetChannels()
			if err != nil {
				return err
			}
			cmd.Printf("Bark: %s  key %s\n", bool2Text(s.BarkEnabled), s.BarkKey)
			cmd.Printf("ntfy: %s  topic %s\n", bool2Text(s.NtfyEnabled), s.NtfyTopic)
			chat := ""
			if s.TelegramChat != 0 {
				chat = strconv.FormatInt(s.TelegramChat, 10)
			}
			cmd.Printf("Telegram: %s  token %s chat %s\n", bool2Text(s.TelegramEnabled), s.TelegramToken, chat)
			return nil
		},
	}

	cmd.AddCommand(
		newChannelCommand("bark", "Bark push notifications (iOS)", "key", "Bark device key",
			func(p *notify.SettingsPatch, on *bool, secret *string) {
				p.BarkEnabled, p.BarkKey = on, secret
			}),
		newChannelCommand("ntfy", "ntfy push notifications", "topic", "ntfy topic",
			func(p *notify.SettingsPatch, on *bool, secret *string) {
				p.NtfyEnabled, p.NtfyTopic = on, secret
			}),
		newTelegramCommand(),
		newNotifyTestCommand(),
	)

	return cmd
}

// newChannelCommand builds "enable", "disable" and a setter for the
// channel's credential.
func newChannelCommand(name, short, secretName, secretHelp string, set func(p *notify.SettingsPatch, on *bool, secret *string)) *cobra.Command {
	apply := func(on *bool, secret *string) error {
		var p notify.SettingsPatch
		set(&p, on, secret)
		if _, err := apiClient.SetChannels(p); err != nil {
			return fmt.Errorf("failed to update %s: %v", name, err)
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
	}

	enabled, disabled := true, false
	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable " + name,
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := apply(&enabled, nil); err != nil {
					return err
				}
				logrus.Infof("successfully enabled %s", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable " + name,
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := apply(&disabled, nil); err != nil {
					return err
				}
				logrus.Infof("successfully disabled %s", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   secretName + " [" + secretName + "]",
			Short: "Set the " + secretHelp,
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				v := args[0]
				if err := apply(nil, &v); err != nil {
					return err
				}
				logrus.Infof("successfully set %s", secretHelp)
				return nil
			},
		},
	)

	return cmd
}

func newTelegramCommand() *cobra.Command {
	cmd := newChannelCommand("telegram", "Telegram bot messages", "token", "Telegram bot token",
		func(p *notify.SettingsPatch, on *bool, secret *string) {
			p.TelegramEnabled, p.TelegramToken = on, secret
		})

	cmd.AddCommand(&cobra.Command{
		Use:   "chat [chat-id]",
		Short: "Set the Telegram chat to send messages to",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id: %v", err)
			}
			if _, err := apiClient.SetChannels(notify.SettingsPatch{TelegramChat: &id}); err != nil {
				return fmt.Errorf("failed to update telegram: %v", err)
			}
			logrus.Infof("successfully set Telegram chat to %d", id)
			return nil
		},
	})

	return cmd
}

func newNotifyTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send a test notification on every enabled channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := apiClient.TestNotify()
			if err != nil {
				return err
			}
			switch {
			case res.Attempted == 0:
				return fmt.Errorf("nothing was sent: no channel is enabled or the device is offline")
			case !res.OK():
				return fmt.Errorf("all %d channels failed, check the daemon logs", res.Attempted)
			}
			cmd.Printf("Delivered on %d of %d channels.\n", res.Succeeded, res.Attempted)
			return nil
		},
	}
}
