package discovery

import "errors"

var errUnknownDatagramType = errors.New("discovery: unknown datagram type")
