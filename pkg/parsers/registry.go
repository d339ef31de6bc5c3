/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: registry.go
Description: Format plug-in registry for the Choronzon fuzzer. Maps the parser name
from the configuration to a Format implementation, replacing dynamic module loading
with an explicit dispatch table.
*/

package parsers

import (
	"fmt"

	"github.com/kleascm/choronzon/pkg/interfaces"
	"github.com/kleascm/choronzon/pkg/parsers/png"
)

// Lookup resolves a parser name to its Format plug-in.
func Lookup(name string) (interfaces.Format, error) {
	switch name {
	case "png":
		return png.New(), nil
	}
	return nil, fmt.Errorf("%w: unknown parser %q", interfaces.ErrConfig, name)
}
