package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/illarion/cloudvault/cmd"
	"github.com/illarion/cloudvault/crypto"
	"github.com/illarion/cloudvault/factory"
	"github.com/illarion/cloudvault/internal/logging"
	"github.com/illarion/cloudvault/internal/passphrase"
	"github.com/illarion/cloudvault/internal/telemetry"
	"github.com/illarion/cloudvault/middleware"
	"github.com/illarion/cloudvault/storage"
)

var version = "dev"

var errUsage = errors.New("wrong number of arguments")

var (
	storeFlag = &cli.StringFlag{
		Name:    "store",
		Value:   "file://./storagecache",
		EnvVars: []string{"CLOUDVAULT_STORE"},
		Usage:   "storage location URI (file, bolt, mem, s3, minio, dynamodb, gdrive, ipfs, vault)",
	}
	logJSONFlag = &cli.BoolFlag{
		Name:  "log-json",
		Usage: "log in JSON format",
	}
	logDebugFlag = &cli.BoolFlag{
		Name:  "log-debug",
		Usage: "log debug messages, including every storage operation",
	}
	logUIDFlag = &cli.BoolFlag{
		Name:  "log-uid",
		Usage: "generate a uuid and add to all log messages",
	}
	compressFlag = &cli.StringFlag{
		Name:  "compress",
		Value: "none",
		Usage: "compress stored content: none, zstd or lz4",
	}
	cipherFlag = &cli.StringFlag{
		Name:  "cipher",
		Value: "aes-gcm",
		Usage: "envelope cipher: aes-gcm or chacha20-poly1305",
	}
	traceFlag = &cli.StringFlag{
		Name:  "trace",
		Value: "none",
		Usage: "export traces: none, stdout or otlp (OTEL_EXPORTER_OTLP_ENDPOINT)",
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "cloudvault",
		Usage:   "Store and retrieve passphrase-encrypted objects on local and cloud backends",
		Version: version,
		Flags: []cli.Flag{
			storeFlag,
			logJSONFlag,
			logDebugFlag,
			logUIDFlag,
			compressFlag,
			cipherFlag,
			traceFlag,
		},
		Commands: []*cli.Command{
			{
				Name:  "ls",
				Usage: "List stored objects",
				Action: withStore(0, func(cCtx *cli.Context, env *cmd.Env) error {
					return cmd.Ls(env)
				}),
			},
			{
				Name:      "create",
				Usage:     "Create an empty object and print its id",
				ArgsUsage: "NAME",
				Action: withStore(1, func(cCtx *cli.Context, env *cmd.Env) error {
					return cmd.Create(env, cCtx.Args().Get(0))
				}),
			},
			{
				Name:      "get",
				Usage:     "Print or save the content of an object",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write to `FILE` instead of stdout"},
					&cli.BoolFlag{Name: "decrypt", Aliases: []string{"d"}, Usage: "decrypt with the store passphrase"},
				},
				Action: withStore(1, func(cCtx *cli.Context, env *cmd.Env) error {
					return cmd.Get(env, cCtx.Args().Get(0), cCtx.String("output"), cCtx.Bool("decrypt"))
				}),
			},
			{
				Name:      "put",
				Usage:     "Replace the content of an object with a local file",
				ArgsUsage: "ID FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "encrypt", Aliases: []string{"e"}, Usage: "encrypt with the store passphrase"},
					&cli.BoolFlag{Name: "create", Aliases: []string{"c"}, Usage: "create the object first"},
				},
				Action: withStore(2, func(cCtx *cli.Context, env *cmd.Env) error {
					return cmd.Put(env, cCtx.Args().Get(0), cCtx.Args().Get(1), cCtx.Bool("encrypt"), cCtx.Bool("create"))
				}),
			},
			{
				Name:      "rm",
				Usage:     "Delete an object",
				ArgsUsage: "ID",
				Action: withStore(1, func(cCtx *cli.Context, env *cmd.Env) error {
					return cmd.Rm(env, cCtx.Args().Get(0))
				}),
			},
			{
				Name:      "diff",
				Usage:     "Compare an object with a local file",
				ArgsUsage: "ID FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "decrypt", Aliases: []string{"d"}, Usage: "decrypt the object first"},
					&cli.BoolFlag{Name: "unified", Aliases: []string{"u"}, Usage: "print -/+ lines instead of conflict markers"},
				},
				Action: withStore(2, func(cCtx *cli.Context, env *cmd.Env) error {
					return cmd.Diff(env, cCtx.Args().Get(0), cCtx.Args().Get(1), cCtx.Bool("decrypt"), cCtx.Bool("unified"))
				}),
			},
			{
				Name:  "compact",
				Usage: "Reclaim space in a bolt:// store",
				Action: func(cCtx *cli.Context) error {
					return cmd.Compact(cCtx.App.Writer, cCtx.String(storeFlag.Name))
				},
			},
			{
				Name:  "keyring",
				Usage: "Manage the store passphrase saved in the OS keyring",
				Subcommands: []*cli.Command{
					{
						Name:  "save",
						Usage: "Save the store passphrase",
						Action: func(cCtx *cli.Context) error {
							return cmd.KeyringSave(cCtx.App.Writer, cCtx.String(storeFlag.Name), passphrase.ReadTerminal(cCtx.App.ErrWriter))
						},
					},
					{
						Name:  "delete",
						Usage: "Forget the saved passphrase",
						Action: func(cCtx *cli.Context) error {
							return cmd.KeyringDelete(cCtx.App.Writer, cCtx.String(storeFlag.Name))
						},
					},
					{
						Name:  "status",
						Usage: "Show whether a passphrase is saved",
						Action: func(cCtx *cli.Context) error {
							cmd.KeyringStatus(cCtx.App.Writer, cCtx.String(storeFlag.Name))
							return nil
						},
					},
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		cmd.HandleError(err)
	}
}

// withStore opens the configured store for the duration of one command
func withStore(nargs int, action func(*cli.Context, *cmd.Env) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		if cCtx.NArg() != nargs {
			return fmt.Errorf("%w: usage: cloudvault %s %s", errUsage, cCtx.Command.Name, cCtx.Command.ArgsUsage)
		}

		log := logging.Setup(logging.Options{
			JSON:    cCtx.Bool(logJSONFlag.Name),
			Debug:   cCtx.Bool(logDebugFlag.Name),
			UID:     cCtx.Bool(logUIDFlag.Name),
			Service: "cloudvault",
			Version: version,
		})

		codec, err := middleware.ParseCodec(cCtx.String(compressFlag.Name))
		if err != nil {
			return err
		}
		cipher, err := crypto.ParseCipher(cCtx.String(cipherFlag.Name))
		if err != nil {
			return err
		}
		envelope, err := crypto.NewEnvelope(cipher)
		if err != nil {
			return err
		}
		exporter, err := telemetry.ParseExporter(cCtx.String(traceFlag.Name))
		if err != nil {
			return err
		}

		tel, err := telemetry.Init(cCtx.Context, telemetry.Options{
			Exporter:       exporter,
			ServiceName:    "cloudvault",
			ServiceVersion: version,
			Writer:         cCtx.App.ErrWriter,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				log.Warn("Failed to flush telemetry", "err", err)
			}
		}()

		uri := cCtx.String(storeFlag.Name)
		opts := []factory.Option{
			factory.WithLogger(log),
			factory.WithCompression(codec),
		}
		if tel.Enabled() {
			opts = append(opts, factory.WithTracing(tel.Tracer(), tel.Meter()))
		}
		s, err := factory.Open(cCtx.Context, uri, opts...)
		if err != nil {
			return err
		}
		defer func() {
			if err := storage.Close(s); err != nil {
				log.Warn("Failed to close store", "err", err)
			}
		}()

		return action(cCtx, &cmd.Env{
			Store:      storage.NewBlocking(s, storage.WithSealer(envelope)),
			URI:        uri,
			Out:        cCtx.App.Writer,
			Passphrase: cmd.PassphraseFor(uri),
		})
	}
}
