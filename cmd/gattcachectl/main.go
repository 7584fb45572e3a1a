// Command gattcachectl is a small host-provisioning style demo that wires a
// cache.Cache up to an in-memory simulated peer and drives its public
// surface end to end, the way a real host's field tool would.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli"

	"github.com/leso-kn/gattcache/ble"
	"github.com/leso-kn/gattcache/cache"
	"github.com/leso-kn/gattcache/config"
	"github.com/leso-kn/gattcache/persist"
	"github.com/leso-kn/gattcache/remote"
)

// staticConnRegistry answers every ConnRegistry query from a fixed table,
// standing in for a real host's connection/bond tracker.
type staticConnRegistry struct {
	addr   ble.Addr
	bonded bool
}

func (r staticConnRegistry) IdentityAddress(conn uint16) (ble.Addr, bool) { return r.addr, true }
func (r staticConnRegistry) Bonded(conn uint16) bool                      { return r.bonded }

type noKeys struct{}

func (noKeys) BondKey(addr ble.Addr) ([16]byte, bool) { return [16]byte{}, false }

func main() {
	app := cli.NewApp()
	app.Name = "gattcachectl"
	app.Usage = "drive a client-side GATT attribute cache against a simulated peer"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "conn", Value: 0, Usage: "connection handle to operate on"},
		cli.StringFlag{Name: "addr", Value: "01:02:03:04:05:06", Usage: "peer address, AA:BB:CC:DD:EE:FF"},
		cli.BoolFlag{Name: "dump-json", Usage: "print results as JSON instead of text"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "search-services",
			Usage:  "enumerate every discovered service",
			Action: searchServicesCommand,
		},
		{
			Name:   "search-characteristics",
			Usage:  "gattcachectl search-characteristics <start> <end> -- enumerate characteristics in a handle range",
			Action: searchCharacteristicsCommand,
		},
		{
			Name:   "get-db",
			Usage:  "print the total attribute count currently cached",
			Action: getDBCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// demoCache builds a Cache over a Simulated transport pre-populated with
// one service, two characteristics and one descriptor, connects conn and
// runs its event loop in the background. Callers must call the returned
// stop func before exiting.
func demoCache(c *cli.Context) (*cache.Cache, uint16, func(), error) {
	conn := uint16(c.GlobalInt("conn"))
	addr, err := ble.ParseAddr(c.GlobalString("addr"), ble.AddrTypePublic)
	if err != nil {
		return nil, 0, nil, err
	}

	transport := remote.NewSimulated()
	transport.AddService(conn, remote.GattSvc{IsPrimary: true, StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	transport.AddCharacteristic(conn, 1, remote.GattChr{DefHandle: 3, ValHandle: 4, Properties: 0x02, UUID: ble.UUID16(0x2A00)})
	transport.AddCharacteristic(conn, 1, remote.GattChr{DefHandle: 5, ValHandle: 6, Properties: 0x02, UUID: ble.UUID16(0x2A01)})
	transport.AddDescriptor(conn, 6, remote.GattDsc{Handle: 7, UUID: ble.ClientCharacteristicConfigUUID})

	queue := cache.NewChannelQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx)

	backend := persist.NewCMACBackend(noKeys{})
	connReg := staticConnRegistry{addr: addr}
	ch := cache.New(config.DefaultConfig(), transport, backend, connReg, queue, ble.NopLogger())

	if err := ch.Create(conn, addr); err != nil {
		cancel()
		return nil, 0, nil, err
	}
	return ch, conn, cancel, nil
}

func printResult(c *cli.Context, v interface{}) {
	if c.GlobalBool("dump-json") {
		data, _ := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%+v\n", v)
}

func searchServicesCommand(c *cli.Context) error {
	ch, conn, stop, err := demoCache(c)
	if err != nil {
		return err
	}
	defer stop()

	done := make(chan struct{})
	err = ch.Router().SearchAllServices(conn, func(svc *cache.ServiceResult, err error) {
		if err == cache.ErrDone {
			close(done)
			return
		}
		printResult(c, svc)
	})
	if err != nil {
		return err
	}
	waitOrTimeout(done)
	return nil
}

func searchCharacteristicsCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: search-characteristics <start> <end>")
	}
	start, err := strconv.ParseUint(c.Args().Get(0), 0, 16)
	if err != nil {
		return err
	}
	end, err := strconv.ParseUint(c.Args().Get(1), 0, 16)
	if err != nil {
		return err
	}

	ch, conn, stop, err := demoCache(c)
	if err != nil {
		return err
	}
	defer stop()

	done := make(chan struct{})
	err = ch.Router().SearchAllCharacteristics(conn, uint16(start), uint16(end), func(chr *cache.CharResult, err error) {
		if err == cache.ErrDone {
			close(done)
			return
		}
		printResult(c, chr)
	})
	if err != nil {
		return err
	}
	waitOrTimeout(done)
	return nil
}

func getDBCommand(c *cli.Context) error {
	ch, conn, stop, err := demoCache(c)
	if err != nil {
		return err
	}
	defer stop()

	// Force discovery to completion before reporting size: GetDBSizeInRange
	// is a synchronous snapshot, so run a search and wait for its Done.
	done := make(chan struct{})
	err = ch.Router().SearchAllServices(conn, func(_ *cache.ServiceResult, err error) {
		if err == cache.ErrDone {
			close(done)
		}
	})
	if err != nil {
		return err
	}
	waitOrTimeout(done)

	n, err := ch.Router().GetDBSizeInRange(conn, 0x0001, 0xFFFF)
	if err != nil {
		return err
	}
	printResult(c, map[string]int{"attr_count": n})
	return nil
}

func waitOrTimeout(done chan struct{}) {
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		fmt.Fprintln(os.Stderr, "gattcachectl: timed out waiting for completion")
	}
}
