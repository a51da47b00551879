package main

import (
	"errors"
	"fmt"
	"github.com/cpacia/ethrpc/contract"
	"github.com/cpacia/ethrpc/lifecycle"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
)

func newDeployCmd(v *viper.Viper) *cobra.Command {
	var (
		abiPath string
		bin     string
		from    string
		gas     uint64
	)

	cmd := &cobra.Command{
		Use:   "deploy [constructor args...]",
		Short: "Deploy a contract and follow it until it settles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if abiPath == "" {
				return errors.New("--abi is required")
			}
			if !common.IsHexAddress(from) {
				return fmt.Errorf("invalid --from address %q", from)
			}
			abiJSON, err := os.ReadFile(abiPath)
			if err != nil {
				return err
			}
			data, err := readBytecode(bin)
			if err != nil {
				return err
			}

			w, err := newWeb3(v)
			if err != nil {
				return err
			}
			defer w.Close()

			c, err := w.NewContract(string(abiJSON), nil, contract.From(common.HexToAddress(from)), contract.Gas(gas))
			if err != nil {
				return err
			}
			ctorArgs, err := constructorArgs(c.ABI.Constructor.Inputs, args)
			if err != nil {
				return err
			}

			h, err := c.Deploy(contract.DeployOptions{Data: data, Arguments: ctorArgs}).Send(cmd.Context(), contract.SendOptions{})
			if err != nil {
				return err
			}
			follow(cmd.OutOrStdout(), h)
			<-h.Terminated()

			result, err := h.Result(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Contract deployed at %s\n", result.(*contract.Contract).Address.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&abiPath, "abi", "", "path to the contract ABI")
	cmd.Flags().StringVar(&bin, "bin", "", "hex bytecode, or @path to a file holding it")
	cmd.Flags().StringVar(&from, "from", "", "sender address")
	cmd.Flags().Uint64Var(&gas, "gas", 0, "gas limit, estimated by the node if zero")
	return cmd
}

// follow prints the handle's progress.
func follow(out io.Writer, h *lifecycle.Handle) {
	h.On(lifecycle.EventTransactionHash, func(payload interface{}) {
		fmt.Fprintf(out, "Transaction hash %s\n", payload)
	}).On(lifecycle.EventReceipt, func(payload interface{}) {
		rcpt := payload.(*types.Receipt)
		fmt.Fprintf(out, "Mined in block %s\n", rcpt.BlockNumber)
	}).On(lifecycle.EventConfirmation, func(payload interface{}) {
		fmt.Fprintf(out, "Confirmation %d\n", payload.(lifecycle.Confirmation).Count)
	}).On(lifecycle.EventError, func(payload interface{}) {
		fmt.Fprintf(out, "Error: %s\n", payload)
	})
}

func readBytecode(bin string) ([]byte, error) {
	if strings.HasPrefix(bin, "@") {
		raw, err := os.ReadFile(bin[1:])
		if err != nil {
			return nil, err
		}
		bin = strings.TrimSpace(string(raw))
	}
	if bin == "" {
		return nil, contract.ErrNoContractData
	}
	if !strings.HasPrefix(bin, "0x") {
		bin = "0x" + bin
	}
	return hexutil.Decode(bin)
}

// constructorArgs converts command line arguments into the Go values the
// ABI packer expects. Only elementary types are supported.
func constructorArgs(inputs abi.Arguments, args []string) ([]interface{}, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("constructor takes %d arguments, got %d", len(inputs), len(args))
	}
	values := make([]interface{}, len(args))
	for i, input := range inputs {
		v, err := convertArg(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %s", input.Name, err)
		}
		values[i] = v
	}
	return values, nil
}

func convertArg(t abi.Type, arg string) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(arg) {
			return nil, fmt.Errorf("invalid address %q", arg)
		}
		return common.HexToAddress(arg), nil
	case abi.BoolTy:
		return strconv.ParseBool(arg)
	case abi.StringTy:
		return arg, nil
	case abi.BytesTy:
		return hexutil.Decode(arg)
	case abi.UintTy:
		if t.Size > 64 {
			n, ok := new(big.Int).SetString(arg, 0)
			if !ok || n.Sign() < 0 {
				return nil, fmt.Errorf("invalid %s %q", t, arg)
			}
			return n, nil
		}
		n, err := strconv.ParseUint(arg, 0, t.Size)
		if err != nil {
			return nil, err
		}
		switch t.Size {
		case 8:
			return uint8(n), nil
		case 16:
			return uint16(n), nil
		case 32:
			return uint32(n), nil
		case 64:
			return n, nil
		}
	case abi.IntTy:
		if t.Size > 64 {
			n, ok := new(big.Int).SetString(arg, 0)
			if !ok {
				return nil, fmt.Errorf("invalid %s %q", t, arg)
			}
			return n, nil
		}
		n, err := strconv.ParseInt(arg, 0, t.Size)
		if err != nil {
			return nil, err
		}
		switch t.Size {
		case 8:
			return int8(n), nil
		case 16:
			return int16(n), nil
		case 32:
			return int32(n), nil
		case 64:
			return n, nil
		}
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}
