package attenuator

import (
	"fmt"

	"github.com/COO-Utilities/ozoptics/wire"
)

// encodeCommand validates a mnemonic against the controller's command set
// and serializes it to a wire line. A non-empty param is concatenated
// directly after the mnemonic with no separator (mnemonic "A", param
// "3.25" gives "A3.25\r\n"); params on non-parameterized commands are
// dropped. When custom is true the legality check is skipped and any text
// goes out as-is, which is how the interactive shell forwards operator
// input.
//
// Validation only; no network I/O happens here.
func encodeCommand(mnemonic, param string, custom bool) (string, error) {
	known := wire.Known(mnemonic)
	if !known && !custom {
		return "", fmt.Errorf("%q: %w", mnemonic, ErrUnknownCommand)
	}
	line := mnemonic
	if param != "" && known && wire.TakesParameter(mnemonic) {
		line += param
	}
	return line + wire.CRLF, nil
}
