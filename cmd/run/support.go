package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/corefmt"
	"github.com/zintix-labs/acdc/demo/demo_configs"
	"github.com/zintix-labs/acdc/demo/demo_integrand"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/spec"
	"github.com/zintix-labs/acdc/stats"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// 快照檔上限
const maxSnapBytes = 256 << 20

var cfg *config = new(config)

type config struct {
	id        spec.RunID
	cfgPath   string
	worker    int
	trials    int
	seed      int64
	prng      string
	format    string
	save      string
	load      string
	pprofmode string
}

type ridFlag struct{ p *spec.RunID }

func (f ridFlag) String() string {
	if f.p == nil {
		return "0"
	}
	return fmt.Sprint(uint(*f.p))
}
func (f ridFlag) Set(s string) error {
	u, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return err
	}
	*f.p = spec.RunID(uint(u))
	return nil
}

func bindVar() {
	flag.Var(ridFlag{&cfg.id}, "run", "target run id")
	flag.StringVar(&cfg.cfgPath, "cfg", "", "run setting yaml (overrides -run)")
	flag.IntVar(&cfg.worker, "worker", 1, "number of workers")
	flag.IntVar(&cfg.trials, "trials", 1000000, "trials per worker")
	flag.Int64Var(&cfg.seed, "seed", -1, "int64 seed for random number generator")
	flag.StringVar(&cfg.prng, "prng", "pcg64", "prng: pcg64, pcg32, mt19937")
	flag.StringVar(&cfg.format, "format", "", "report format: '' (table with timing), table, json, yaml")
	flag.StringVar(&cfg.save, "save", "", "write sampler snapshot after the run (single worker)")
	flag.StringVar(&cfg.load, "load", "", "restore sampler snapshot before the run (single worker)")
	flag.StringVar(&cfg.pprofmode, "p", "", "pprof: '', cpu, heap, allocs")

	flag.Parse()

	// given seed illegal -> random seed
	if cfg.seed < 0 {
		cfg.seed = acdc.RandomSeed()
	}
}

// 這裡解析並分支要執行的模擬器
func executeSimulator() {
	cfg.valid()

	cf, ok := core.Factory(cfg.prng)
	if !ok {
		log.Fatalf("unknown prng %q", cfg.prng)
	}
	lab, err := acdc.NewAuto(
		cf,
		acdc.Configs(demo_configs.FS),
		acdc.Integrands(demo_integrand.Integrands),
	)
	if err != nil {
		log.Fatal(err)
	}
	s, err := newSimulator(lab)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.load != "" {
		if err := loadSnapshot(s.Engine(), cfg.load); err != nil {
			log.Fatal(err)
		}
	}
	// 至此確保可執行
	green := "\033[1;32m"
	reset := "\033[0m"
	p := message.NewPrinter(language.English)

	// 指定 format 時 stdout 只留報表本體
	showpb := cfg.format == ""
	head := io.Writer(os.Stdout)
	if !showpb {
		head = os.Stderr
	}
	var (
		st   *stats.StatReport
		used time.Duration
	)
	if cfg.worker == 1 { // 單線程
		p.Fprintf(head, "%s[RUN:%s] [SEED:%d] [TRIALS:%d]%s\n", green, s.RunName, cfg.seed, cfg.trials, reset)
		st, used, err = s.Sim(cfg.trials, showpb)
	} else {
		p.Fprintf(head, "%s[WORKERS:%d] [RUN:%s] [SEED:%d] [TRIALS:%d]%s\n", green, cfg.worker, s.RunName, cfg.seed, cfg.worker*cfg.trials, reset)
		st, used, err = s.SimMP(cfg.trials, cfg.worker, showpb) // 併發
	}
	if err != nil {
		log.Fatal(err)
	}
	if showpb {
		st.StdOut(used)
	} else {
		render, err := stats.RenderOf(cfg.format)
		if err != nil {
			log.Fatal(err)
		}
		if err := st.WriteWith(os.Stdout, render); err != nil {
			log.Fatal(err)
		}
		p.Fprintf(os.Stderr, "used %.3fs\n", used.Seconds())
	}
	if cfg.save != "" {
		if err := saveSnapshot(s.Engine(), cfg.save); err != nil {
			log.Fatal(err)
		}
	}
}

func newSimulator(lab *acdc.Lab) (*acdc.Simulator, error) {
	if cfg.cfgPath != "" {
		raw, err := os.ReadFile(cfg.cfgPath)
		if err != nil {
			return nil, err
		}
		return lab.NewSimulatorByYAML(raw, cfg.seed)
	}
	return lab.NewSimulatorWithSeed(cfg.id, cfg.seed)
}

// 快照檔格式：單一 blob frame（uvarint 長度 + 取樣器快照）
func saveSnapshot(e *acdc.Engine, path string) error {
	snap, err := e.Snapshot()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return corefmt.WriteBlobFrame(f, snap)
}

func loadSnapshot(e *acdc.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	snap, err := corefmt.ReadBlobFrame(f, maxSnapBytes)
	if err != nil {
		return err
	}
	return e.Restore(snap)
}

func (cfg *config) valid() {
	// 工作協程檢查(併發數)
	if cfg.worker < 1 {
		log.Fatal("value err : workers must > 0")
	}
	if cfg.trials < 1 {
		log.Fatal("value err : trials must > 0")
	}
	if cfg.cfgPath == "" && cfg.id == 0 {
		log.Fatal("value err : -run or -cfg is required")
	}
	// 快照只對應單一取樣器
	if cfg.worker > 1 && (cfg.save != "" || cfg.load != "") {
		log.Fatal("value err : -save/-load need -worker 1")
	}
}
