// Command groupdemo runs several group members in one process on a shared
// replicated log, sends messages between them and reports latency.
//
//	groupdemo -members m1,m2,m3 -messages 1000 -delivery request_reply
//	groupdemo -config member.yml -delivery sync
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/zheilbron/atomix/configuration"
	"github.com/zheilbron/atomix/group"
	"github.com/zheilbron/atomix/loadbalance"
	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/producer"
)

func main() {
	configFile := flag.String("config", "", "member configuration file (log backend, codec, submit settings)")
	memberList := flag.String("members", "m1,m2,m3", "comma separated member names run in this process")
	messages := flag.Int("messages", 1000, "number of messages to send")
	concurrency := flag.Int("concurrency", 8, "number of outstanding messages")
	delivery := flag.String("delivery", "request_reply", "delivery policy [async, sync, request_reply]")
	dispatch := flag.String("dispatch", "round_robin", "dispatch policy [round_robin, random, hash, broadcast]")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *configFile, *memberList, *messages, *concurrency, *delivery, *dispatch); err != nil {
		logger.Fatal("groupdemo failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func run(logger *zap.Logger, configFile, memberList string, n, concurrency int, deliveryName, dispatchName string) error {
	deliveryPolicy, err := message.ParseDeliveryPolicy(deliveryName)
	if err != nil {
		return err
	}
	dispatchPolicy, err := message.ParseDispatchPolicy(dispatchName)
	if err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	base := configuration.Default()
	if configFile != "" {
		if base, err = configuration.Load(configFile); err != nil {
			return err
		}
	}
	var members []loadbalance.Member
	for _, name := range strings.Split(memberList, ",") {
		if name = strings.TrimSpace(name); name != "" {
			members = append(members, loadbalance.Member{Name: name})
		}
	}
	if len(members) == 0 {
		return fmt.Errorf("no members given")
	}
	base.Members = members

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := group.OpenLog(ctx, base.Log, logger)
	if err != nil {
		return err
	}
	defer log.Close()

	var joined []*group.Member
	for _, m := range members {
		cfg := *base
		cfg.Member = m.Name
		member, err := group.Join(&cfg, log, logger)
		if err != nil {
			return err
		}
		name := m.Name
		member.Consumer("bench", func(ctx context.Context, msg *message.Message) (any, error) {
			return name, nil
		})
		member.Start(ctx)
		joined = append(joined, member)
	}
	defer func() {
		for _, m := range joined {
			if err := m.Close(5 * time.Second); err != nil {
				logger.Warn("close member", zap.String("member", m.Name()), zap.Error(err))
			}
		}
	}()

	p := joined[0].Producer("bench", producer.Options{Dispatch: dispatchPolicy, Delivery: deliveryPolicy})
	logger.Info("sending messages",
		zap.Int("messages", n), zap.Int("members", len(members)),
		zap.Stringer("delivery", deliveryPolicy), zap.Stringer("dispatch", dispatchPolicy))

	var (
		mu        sync.Mutex
		latencies []float64 // microseconds
		failures  int
		replies   = map[string]int{}
		wg        sync.WaitGroup
		window    = make(chan struct{}, concurrency)
	)
	start := time.Now()
	for i := 0; i < n; i++ {
		window <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer func() {
				<-window
				wg.Done()
			}()
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			begin := time.Now()
			v, err := p.Send(sendCtx, "", fmt.Sprintf("msg-%d", i)).Get(sendCtx)
			elapsed := time.Since(begin)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				logger.Debug("message failed", zap.Int("message", i), zap.Error(err))
				return
			}
			latencies = append(latencies, float64(elapsed.Microseconds()))
			if name, ok := v.(string); ok {
				replies[name]++
			}
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	median, _ := stats.Median(latencies)
	p99, _ := stats.Percentile(latencies, 99.0) // tail latency

	fmt.Printf("Total time := %v\n", duration)
	fmt.Printf("Throughput := %.0f messages per second\n", float64(len(latencies))/duration.Seconds())
	fmt.Printf("Median Latency := %.0f micro seconds per message\n", median)
	fmt.Printf("99 percentile latency := %.0f micro seconds per message\n", p99)
	fmt.Printf("Failed messages := %d\n", failures)
	for _, m := range members {
		if replies[m.Name] > 0 {
			fmt.Printf("Replies from %s := %d\n", m.Name, replies[m.Name])
		}
	}
	return nil
}
