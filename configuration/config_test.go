package configuration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zheilbron/atomix/codec"
)

const sample = `
member: m1
members:
  - name: m1
    weight: 2
  - name: m2
codec: json
log:
  backend: etcd
  etcd:
    endpoints: [10.0.0.1:2379, 10.0.0.2:2379]
    prefix: /groups/test/
submit:
  timeout: 2s
  retries: 5
  retry_delay: 10ms
  rate: 100
  burst: 10
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Member != "m1" || len(cfg.Members) != 2 || cfg.Members[0].Weight != 2 {
		t.Fatalf("unexpected members %+v", cfg.Members)
	}
	if cfg.CodecType() != codec.CodecTypeJSON {
		t.Fatalf("expect json codec, got %s", cfg.CodecType())
	}
	if cfg.Log.Backend != BackendEtcd || len(cfg.Log.Etcd.Endpoints) != 2 || cfg.Log.Etcd.Prefix != "/groups/test/" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	// untouched keys keep their defaults
	if cfg.Log.Etcd.DialTimeout != 5*time.Second {
		t.Fatalf("expect default dial timeout, got %s", cfg.Log.Etcd.DialTimeout)
	}
	want := SubmitConfig{Timeout: 2 * time.Second, Retries: 5, RetryDelay: 10 * time.Millisecond, Rate: 100, Burst: 10}
	if cfg.Submit != want {
		t.Fatalf("got %+v, want %+v", cfg.Submit, want)
	}
}

func TestParseMinimal(t *testing.T) {
	cfg, err := Parse([]byte("member: solo\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Members) != 1 || cfg.Members[0].Name != "solo" {
		t.Fatalf("expect the local member as the only member, got %+v", cfg.Members)
	}
	if cfg.Log.Backend != BackendMemory || cfg.CodecType() != codec.CodecTypeBinary {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "member: m1\ncolour: blue\n",
		"no member":        "codec: json\n",
		"not a member":     "member: m3\nmembers: [{name: m1}, {name: m2}]\n",
		"duplicate member": "member: m1\nmembers: [{name: m1}, {name: m1}]\n",
		"negative weight":  "member: m1\nmembers: [{name: m1, weight: -1}]\n",
		"bad codec":        "member: m1\ncodec: xml\n",
		"bad backend":      "member: m1\nlog: {backend: kafka}\n",
		"no endpoints":     "member: m1\nlog: {backend: etcd, etcd: {endpoints: []}}\n",
		"no redis addr":    "member: m1\nlog: {backend: redis, redis: {addr: \"\"}}\n",
		"rate no burst":    "member: m1\nsubmit: {rate: 5}\n",
		"negative retries": "member: m1\nsubmit: {retries: -1}\n",
		"bad duration":     "member: m1\nsubmit: {timeout: soon}\n",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expect ErrInvalid, got %v", name, err)
		}
	}
}

func TestLoad(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "member.yml")
	if err := os.WriteFile(fname, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(fname)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Member != "m1" {
		t.Fatalf("unexpected member %q", cfg.Member)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expect not-exist error, got %v", err)
	}
}
