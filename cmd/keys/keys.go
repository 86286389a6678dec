// Package keys is the interactive credentials CLI: it encrypts exchange API
// keys at rest and writes them onto accounts.
package keys

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"tradecore/src/database"
	"tradecore/src/repository"
	"tradecore/src/security"
)

func printUsage() {
	fmt.Println("Available commands:")
	fmt.Println("  help                              Show this help message")
	fmt.Println("  shutdown                          Exit the CLI")
	fmt.Println("  genkey                            Generate a fresh EXCHANGE_CREDENTIALS_KEY")
	fmt.Println("  set_key <accountId> <key> <secret>  Encrypt and store API credentials")
	fmt.Println()
}

type Keys struct{}

func (k *Keys) Start() error {
	if err := database.InitMainDB(); err != nil {
		return err
	}

	ctx := context.Background()
	accounts := repository.NewAccountRepository()

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 1024), 1024*1024)

	for {
		fmt.Print("cmd> ")

		if !reader.Scan() {
			return reader.Err()
		}

		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, " ")

		switch parts[0] {

		case "shutdown":
			fmt.Println("Exiting CLI...")
			return nil

		case "help":
			printUsage()

		case "genkey":
			key, err := security.NewKey()
			if err != nil {
				logger.WithError(err).Error("Failed to generate key")
				continue
			}
			fmt.Printf("EXCHANGE_CREDENTIALS_KEY=%s\n", key)

		case "set_key":
			if len(parts) < 4 {
				printUsage()
				continue
			}

			accountID, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				logger.WithError(err).Error("Invalid account id")
				continue
			}

			encryptedKey, err := security.EncryptString(parts[2])
			if err != nil {
				logger.WithError(err).Error("Failed to encrypt key")
				continue
			}

			encryptedSecret, err := security.EncryptString(parts[3])
			if err != nil {
				logger.WithError(err).Error("Failed to encrypt secret")
				continue
			}

			if err := accounts.UpdateCredentials(ctx, uint(accountID), encryptedKey, encryptedSecret); err != nil {
				logger.WithError(err).Error("Failed to store credentials")
				continue
			}
			fmt.Println("credentials stored")

		default:
			printUsage()
		}
	}
}
