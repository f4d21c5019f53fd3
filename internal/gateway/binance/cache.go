package binance

import (
	"sync"

	bn "github.com/adshao/go-binance/v2"
)

// Bots share one REST client per credential set. The cache is process-wide
// and must tolerate concurrent creation when several bots start at once.
var (
	clientMu sync.Mutex
	clients  = make(map[string]*bn.Client)
)

func sharedClient(apiKey, apiSecret string) *bn.Client {
	key := apiKey + "\x00" + apiSecret
	clientMu.Lock()
	defer clientMu.Unlock()
	if c, ok := clients[key]; ok {
		return c
	}
	c := bn.NewClient(apiKey, apiSecret)
	clients[key] = c
	return c
}
