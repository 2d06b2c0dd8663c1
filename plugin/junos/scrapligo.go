package junos

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
	scraplinetconf "github.com/scrapli/scrapligo/driver/netconf"
	"github.com/scrapli/scrapligo/driver/options"
	"github.com/scrapli/scrapligo/response"
	"github.com/scrapli/scrapligo/util"

	"github.com/damianoneill/netpush/plugin"
)

// closeWait bounds Close. The scrapligo reply reader stops taking the close signal once it holds a transport error.
const closeWait = 5 * time.Second

type scrapligoDriver struct {
	driver *scraplinetconf.Driver
	target string
	alive  atomic.Bool
}

// NewScrapligoDriver opens a NETCONF session over ssh using scrapligo.
func NewScrapligoDriver(ctx context.Context, cred *plugin.Credential, cfg *plugin.Config) (Driver, error) {
	opts := []util.Option{
		options.WithAuthNoStrictKey(),
		options.WithNetconfForceSelfClosingTags(),
		options.WithTransportType("standard"),
		options.WithPort(cfg.ConnectPort),
		options.WithTimeoutOps(cfg.OperationTimeout),
		options.WithAuthUsername(cred.Username),
		options.WithAuthPassword(cred.Secret),
	}

	d, err := scraplinetconf.NewDriver(cred.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create netconf driver")
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if err = d.Open(); err != nil {
		return nil, errors.Wrap(err, "failed to open netconf session")
	}

	sd := &scrapligoDriver{driver: d, target: cred.Host}
	sd.alive.Store(true)
	return sd, nil
}

func (s *scrapligoDriver) Lock(datastore string) error {
	_, err := s.do("lock", func() (*response.NetconfResponse, error) { return s.driver.Lock(datastore) })
	return err
}

func (s *scrapligoDriver) Unlock(datastore string) error {
	_, err := s.do("unlock", func() (*response.NetconfResponse, error) { return s.driver.Unlock(datastore) })
	return err
}

func (s *scrapligoDriver) Discard() error {
	_, err := s.do("discard-changes", func() (*response.NetconfResponse, error) { return s.driver.Discard() })
	return err
}

func (s *scrapligoDriver) Load(format, payload string) error {
	req, err := createLoadRequest(format, payload)
	if err != nil {
		return plugin.NewError(plugin.KindUnexpected, "load-configuration", s.target, err)
	}
	_, err = s.rpc("load-configuration", req)
	return err
}

func (s *scrapligoDriver) CommitCheck() error {
	_, err := s.rpc("commit-check", createCommitCheckRequest())
	return err
}

func (s *scrapligoDriver) Commit() error {
	_, err := s.do("commit", func() (*response.NetconfResponse, error) { return s.driver.Commit() })
	return err
}

func (s *scrapligoDriver) Command(command string) (string, error) {
	reply, err := s.rpc("command", createCommandRequest(command))
	if err != nil {
		return "", err
	}
	return commandOutput(reply), nil
}

func (s *scrapligoDriver) Close() error {
	if !s.alive.Swap(false) {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.driver.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(closeWait):
		return errors.Errorf("timed out closing netconf session to %s", s.target)
	}
}

func (s *scrapligoDriver) IsAlive() bool {
	return s.alive.Load()
}

// rpc sends a request that scrapligo has no dedicated operation for.
func (s *scrapligoDriver) rpc(op string, req interface{}) (*etree.Document, error) {
	body, err := marshal(req)
	if err != nil {
		return nil, plugin.NewError(plugin.KindUnexpected, op, s.target, err)
	}
	return s.do(op, func() (*response.NetconfResponse, error) { return s.driver.RPC(createFilterOption(body)) })
}

// do performs an rpc, classifying its outcome and parsing its reply.
func (s *scrapligoDriver) do(op string, call func() (*response.NetconfResponse, error)) (*etree.Document, error) {
	if !s.alive.Load() {
		return nil, plugin.SessionClosedError(op, s.target)
	}
	resp, err := call()
	if err != nil {
		return nil, plugin.NewError(plugin.KindTransportRPC, op, s.target, err)
	}
	if resp == nil {
		return nil, plugin.NewError(plugin.KindTransportRPC, op, s.target, errors.New("no reply"))
	}
	doc, perr := parseReply(resp.Result)
	if resp.Failed != nil {
		if perr == nil {
			if rerr := replyError(doc); rerr != nil {
				return nil, plugin.NewError(plugin.KindRejected, op, s.target, errors.Wrap(rerr, resp.Failed.Error()))
			}
		}
		return nil, plugin.NewError(plugin.KindRejected, op, s.target, resp.Failed)
	}
	if perr != nil {
		return nil, plugin.NewError(plugin.KindTransportRPC, op, s.target, perr)
	}
	if rerr := replyError(doc); rerr != nil {
		return nil, plugin.NewError(plugin.KindRejected, op, s.target, rerr)
	}
	return doc, nil
}

// createFilterOption populates the Filter field scrapligo uses as the body of a bare rpc.
func createFilterOption(filter string) util.Option {
	return func(x interface{}) error {
		oo, ok := x.(*scraplinetconf.OperationOptions)
		if !ok {
			return util.ErrIgnoredOption
		}
		oo.Filter = filter
		return nil
	}
}
