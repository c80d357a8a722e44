//go:build !jack

package midi

import "fmt"

// openJack is the no-JACK-support stub built by default. Builds that want
// the JACK backend compile internal/midi with -tags jack instead, which
// pulls in jack.go's real implementation over github.com/xthexder/go-jack.
func openJack(clientName, autoConnect string) (Backend, error) {
	return nil, fmt.Errorf("midi: JACK support not compiled in; rebuild with -tags jack")
}
