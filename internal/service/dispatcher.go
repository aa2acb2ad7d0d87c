package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"custodial-wallet-engine/internal/adapter/metrics"
	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"
	"custodial-wallet-engine/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	withdrawUsage  = "Usage: `/wallet withdraw <address> <amount>`"
	portfolioUsage = "Usage: `/portfolio <tokenAddress>`"
	swapUsage      = "Usage: `/swap <inputAsset> <outputAsset> <amount> <slippageBps>`"
	helpMessage    = "Unknown command. Try `/wallet show`, `/wallet new`, `/wallet export`, `/wallet withdraw`, or `/fee <priority>`."
	genericError   = "An error occurred while processing your request. Please try again."
	noTokenData    = "No data available for this token."
)

// Command is one chat message forwarded by the gateway.
type Command struct {
	UserID   string
	Username string
	Content  string
}

// Dispatcher routes chat commands to the engine services and turns every outcome,
// errors included, into reply text delivered through the Notifier.
type Dispatcher struct {
	wallets   ports.WalletService
	fees      ports.FeeService
	transfers ports.TransferService
	swaps     ports.SwapService
	portfolio ports.PortfolioService
	notifier  ports.Notifier
	log       zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	wallets ports.WalletService,
	fees ports.FeeService,
	transfers ports.TransferService,
	swaps ports.SwapService,
	portfolio ports.PortfolioService,
	notifier ports.Notifier,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		wallets:   wallets,
		fees:      fees,
		transfers: transfers,
		swaps:     swaps,
		portfolio: portfolio,
		notifier:  notifier,
		log:       log,
	}
}

// Dispatch handles one command and returns the replies it sent.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) []string {
	args := strings.Fields(strings.TrimPrefix(strings.TrimSpace(cmd.Content), "/"))
	name := commandName(args)
	log := logger.ForUser(d.log, cmd.UserID, name)

	start := time.Now()
	reply, err := d.route(ctx, name, args, cmd)
	metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	metrics.CommandsTotal.WithLabelValues(name, metrics.Result(apperror.CodeOf(err))).Inc()

	if err != nil {
		reply = d.errorReply(log, err)
	} else {
		log.Info().Msg("command handled")
	}

	d.notifier.Notify(ctx, cmd.UserID, reply)
	return []string{reply}
}

func (d *Dispatcher) route(ctx context.Context, name string, args []string, cmd Command) (string, error) {
	switch name {
	case "wallet show":
		view, err := d.wallets.Show(ctx, cmd.UserID)
		if err != nil {
			return "", err
		}
		reply := fmt.Sprintf("Hey @%s, here’s your wallet info:\nPublic Key: `%s`\nBalance: %s SOL", cmd.Username, view.PublicKey, view.Balance)
		if view.Stale {
			reply += "\n(balance could not be refreshed, showing the last known value)"
		}
		return reply, nil

	case "wallet new":
		w, err := d.wallets.Create(ctx, cmd.UserID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Hey @%s, your new wallet has been created!\nPublic Key: `%s`", cmd.Username, w.PublicKey), nil

	case "wallet export":
		hexKey, err := d.wallets.Export(ctx, cmd.UserID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Hey @%s, your Private Key: `%s`", cmd.Username, hexKey), nil

	case "wallet withdraw":
		if len(args) != 4 {
			return withdrawUsage, nil
		}
		if _, err := d.transfers.Withdraw(ctx, cmd.UserID, args[2], args[3]); err != nil {
			return "", err
		}
		return fmt.Sprintf("Hey @%s, successfully withdrew %s SOL to %s.", cmd.Username, args[3], args[2]), nil

	case "fee":
		if len(args) != 2 {
			return "", apperror.ErrInvalidPriority()
		}
		fee, err := d.fees.SetPriority(ctx, cmd.UserID, args[1])
		if err != nil {
			return "", err
		}
		return feeReply(fee), nil

	case "portfolio":
		if len(args) != 2 {
			return portfolioUsage, nil
		}
		report, err := d.portfolio.Report(ctx, args[1])
		if err != nil {
			return "", err
		}
		if report == nil {
			return noTokenData, nil
		}
		return portfolioReply(args[1], report), nil

	case "swap":
		if len(args) != 5 {
			return swapUsage, nil
		}
		bps, err := strconv.Atoi(args[4])
		if err != nil {
			return "", apperror.ErrInvalidSlippage()
		}
		swap, err := d.swaps.Swap(ctx, ports.SwapRequest{
			UserID:      cmd.UserID,
			InputAsset:  args[1],
			OutputAsset: args[2],
			Amount:      args[3],
			SlippageBps: bps,
		})
		if err != nil {
			return "", err
		}
		return swapReply(cmd.Username, swap), nil

	default:
		return helpMessage, nil
	}
}

// errorReply logs err and returns the text the user sees for it.
func (d *Dispatcher) errorReply(log zerolog.Logger, err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		ev := log.Warn()
		if appErr.HTTPStatus >= 500 {
			ev = log.Error()
		}
		ev.Err(err).Str("code", appErr.Code).Msg("command failed")
		return appErr.Message
	}
	log.Error().Err(err).Msg("command failed")
	return genericError
}

// commandName is the metrics and log label of a command. Unknown input collapses to
// a single label.
func commandName(args []string) string {
	if len(args) == 0 {
		return "unknown"
	}
	switch first := strings.ToLower(args[0]); first {
	case "wallet":
		if len(args) > 1 {
			switch sub := strings.ToLower(args[1]); sub {
			case "show", "new", "export", "withdraw":
				return first + " " + sub
			}
		}
		return "unknown"
	case "fee", "portfolio", "swap":
		return first
	default:
		return "unknown"
	}
}

func feeReply(fee decimal.Decimal) string {
	return fmt.Sprintf("Priority fee set to %s SOL based on the selected priority: %q.", fee.StringFixed(4), fee.String())
}

func portfolioReply(address string, r *domain.TokenReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", r.Info.Name, r.Info.Symbol)
	fmt.Fprintf(&b, "Address: `%s`\n", address)
	fmt.Fprintf(&b, "Price: $%s (24h %s%%)\n",
		decimal.NewFromFloat(r.Price.Price).String(),
		decimal.NewFromFloat(r.Price.Variation24h).StringFixed(2))
	fmt.Fprintf(&b, "Market cap: $%s\n", decimal.NewFromFloat(r.Extended.MarketCap).StringFixed(0))
	fmt.Fprintf(&b, "FDV: $%s\n", decimal.NewFromFloat(r.Extended.FDV).StringFixed(0))
	fmt.Fprintf(&b, "Holders: %d", r.Extended.Holders)
	return b.String()
}

func swapReply(username string, s *domain.Swap) string {
	if s.State == domain.SwapStateConfirmed {
		return fmt.Sprintf("Hey @%s, your swap is complete.\nSignature: `%s`", username, s.Signature)
	}
	return fmt.Sprintf("Hey @%s, your swap was submitted but is not confirmed yet.\nSignature: `%s`", username, s.Signature)
}
