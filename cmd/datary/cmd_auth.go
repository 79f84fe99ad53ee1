// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/datary/cmd/datary/config"
	"github.com/AleutianAI/datary/pkg/ux"
)

func (a *app) newLoginCmd() *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = a.cfg.Username
			}

			// Wipe the password buffer if the user aborts.
			memguard.CatchInterrupt()

			password, err := readCredentials(cmd.InOrStdin(), &username, passwordStdin)
			if err != nil {
				return err
			}
			defer password.Destroy()

			client, err := a.newClient()
			if err != nil {
				return err
			}
			token, err := client.SignIn(cmd.Context(), username, password.String())
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			if err := a.saveSession(username, token); err != nil {
				return err
			}
			p := printer(cmd)
			p.Success("Logged in as " + username)
			p.Hint(`Run "datary repo list" to see your repositories`)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Datary username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func (a *app) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer(cmd)
			if a.cfg.Token == "" {
				p.Info("Not logged in")
				return nil
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}
			if err := client.SignOut(cmd.Context()); err != nil {
				// The token is dropped locally either way.
				p.Warning("Backend sign-out failed: " + err.Error())
			}
			if err := a.saveSession(a.cfg.Username, ""); err != nil {
				return err
			}
			p.Success("Logged out")
			return nil
		},
	}
}

// readCredentials returns the password in a locked buffer.
//
// With fromStdin the password is the first line of in and username must
// already be set. Otherwise an interactive form asks for both.
func readCredentials(in io.Reader, username *string, fromStdin bool) (*memguard.LockedBuffer, error) {
	if fromStdin {
		if *username == "" {
			return nil, errors.New("--username is required with --password-stdin")
		}
		raw, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		line, _, _ := bytes.Cut(raw, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			memguard.WipeBytes(raw)
			return nil, errors.New("empty password on stdin")
		}
		buf := memguard.NewBufferFromBytes(line)
		memguard.WipeBytes(raw)
		return buf, nil
	}

	if !ux.IsInteractive() {
		return nil, errors.New("no terminal for the login prompt, use --username and --password-stdin")
	}

	var password string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username").
			Value(username).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("username is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password),
	))
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("login prompt: %w", err)
	}
	return memguard.NewBufferFromBytes([]byte(password)), nil
}

// saveSession writes username and token to the config file, leaving flag
// overrides of this invocation out of it.
func (a *app) saveSession(username, token string) error {
	cfg, err := config.LoadFrom(a.cfgPath)
	if err != nil {
		return err
	}
	cfg.Username = username
	cfg.Token = token
	if err := config.Save(a.cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	a.cfg.Username, a.cfg.Token = username, token
	return nil
}
