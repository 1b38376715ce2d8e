// Command ptmdemo exercises all three engine families -- OF-LF, OF-WF, and
// both Romulus variants -- against a small root-counter workload, so a
// reader can see each engine's UpdateTx/ReadTx/GetRoot/PutRoot contract
// used end to end.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/pbnjay/memory"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/joeycumines/go-ptm/internal/config"
	"github.com/joeycumines/go-ptm/internal/logging"
	"github.com/joeycumines/go-ptm/oflf"
	"github.com/joeycumines/go-ptm/ofwf"
	"github.com/joeycumines/go-ptm/registry"
	"github.com/joeycumines/go-ptm/romulus"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	flag.Parse()

	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		log.Printf("ptmdemo: GOMAXPROCS left unset: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ptmdemo: loading config: %v", err)
	}
	logger := logging.New(os.Stderr, cfg.Level())

	logger.Info().
		Uint64("total_system_memory", memory.TotalMemory()).
		Int64("region_size", cfg.RegionSize).
		Int("max_threads", cfg.MaxThreads).
		Log("ptmdemo: starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("ptmdemo: creating data dir %s: %v", cfg.DataDir, err)
	}

	runOFLF(cfg, logger)
	runOFWF(cfg, logger)
	runRomulusLog(cfg, logger)
	runRomulusLR(cfg, logger)
}

func runOFLF(cfg config.Config, logger *logging.Logger) {
	reg := registry.New(cfg.MaxThreads)
	eng := oflf.New(reg, make([]byte, 1<<20), nil, oflf.WithLogger(logger))

	h, err := reg.Join()
	if err != nil {
		log.Fatalf("ptmdemo/oflf: %v", err)
	}
	defer h.Release()

	for i := 0; i < 10; i++ {
		_, err := oflf.UpdateTx(eng, h.TID(), func(tx *oflf.Tx) (struct{}, error) {
			n, _ := oflf.GetRoot[int](eng, 0)
			return struct{}{}, oflf.PutRoot(eng, 0, n+1)
		})
		if err != nil {
			log.Fatalf("ptmdemo/oflf: update failed: %v", err)
		}
	}
	n, _ := oflf.ReadTx(eng, h.TID(), func(tx *oflf.Tx) (int, error) {
		v, _ := oflf.GetRoot[int](eng, 0)
		return v, nil
	})
	logger.Info().Int("counter", n).Log("ptmdemo/oflf: done")
}

func runOFWF(cfg config.Config, logger *logging.Logger) {
	reg := registry.New(cfg.MaxThreads)
	eng := ofwf.New(reg, make([]byte, 1<<20), nil, ofwf.WithLogger(logger))

	h, err := reg.Join()
	if err != nil {
		log.Fatalf("ptmdemo/ofwf: %v", err)
	}
	defer h.Release()

	for i := 0; i < 10; i++ {
		_, err := ofwf.UpdateTx(eng, h.TID(), func(tx *ofwf.Tx) (struct{}, error) {
			n, _ := ofwf.GetRoot[int](eng, 0)
			return struct{}{}, ofwf.PutRoot(eng, 0, n+1)
		})
		if err != nil {
			log.Fatalf("ptmdemo/ofwf: update failed: %v", err)
		}
	}
	n, _ := ofwf.ReadTx(eng, h.TID(), func(tx *ofwf.Tx) (int, error) {
		v, _ := ofwf.GetRoot[int](eng, 0)
		return v, nil
	})
	logger.Info().Int("counter", n).Log("ptmdemo/ofwf: done")
}

func runRomulusLog(cfg config.Config, logger *logging.Logger) {
	reg := registry.New(cfg.MaxThreads)
	path := filepath.Join(cfg.DataDir, "romulus-log.db")
	eng, recovered, err := romulus.OpenLogEngine(path, reg, cfg.RegionSize, romulus.WithLogger(logger))
	if err != nil {
		log.Fatalf("ptmdemo/romulus-log: opening %s: %v", path, err)
	}
	defer eng.Close()
	logger.Info().Bool("recovered", recovered).Log("ptmdemo/romulus-log: opened")

	h, err := reg.Join()
	if err != nil {
		log.Fatalf("ptmdemo/romulus-log: %v", err)
	}
	defer h.Release()

	_, err = romulus.UpdateTx(eng, h.TID(), func(tx *romulus.LogTx) (struct{}, error) {
		w, werr := romulus.GetRoot[int64](eng, 0)
		if werr != nil {
			return struct{}{}, werr
		}
		if w == nil {
			off, merr := eng.TxMalloc(tx, 8)
			if merr != nil {
				return struct{}{}, merr
			}
			w = romulus.NewWordAt[int64](off)
			if perr := romulus.PutRoot(tx, 0, w); perr != nil {
				return struct{}{}, perr
			}
		}
		w.Store(tx, w.Load(tx)+1)
		return struct{}{}, nil
	})
	if err != nil {
		log.Fatalf("ptmdemo/romulus-log: update failed: %v", err)
	}

	n, err := romulus.ReadTx(eng, h.TID(), func(tx *romulus.LogTx) (int64, error) {
		w, werr := romulus.GetRoot[int64](eng, 0)
		if werr != nil || w == nil {
			return 0, werr
		}
		return w.Load(tx), nil
	})
	if err != nil {
		log.Fatalf("ptmdemo/romulus-log: read failed: %v", err)
	}
	logger.Info().Int64("counter", n).Log("ptmdemo/romulus-log: done")
}

func runRomulusLR(cfg config.Config, logger *logging.Logger) {
	reg := registry.New(cfg.MaxThreads)
	path := filepath.Join(cfg.DataDir, "romulus-lr.db")
	eng, recovered, err := romulus.OpenLREngine(path, reg, cfg.RegionSize, romulus.WithLogger(logger))
	if err != nil {
		log.Fatalf("ptmdemo/romulus-lr: opening %s: %v", path, err)
	}
	defer eng.Close()
	logger.Info().Bool("recovered", recovered).Log("ptmdemo/romulus-lr: opened")

	h, err := reg.Join()
	if err != nil {
		log.Fatalf("ptmdemo/romulus-lr: %v", err)
	}
	defer h.Release()

	_, err = romulus.UpdateTxLR(eng, h.TID(), func(tx *romulus.LRTx) (struct{}, error) {
		w, werr := romulus.GetRootLR[int64](eng, 0)
		if werr != nil {
			return struct{}{}, werr
		}
		if w == nil {
			off, merr := eng.TxMalloc(tx, 8)
			if merr != nil {
				return struct{}{}, merr
			}
			w = romulus.NewWordAt[int64](off)
			if perr := romulus.PutRootLR(tx, 0, w); perr != nil {
				return struct{}{}, perr
			}
		}
		w.Store(tx, w.Load(tx)+1)
		return struct{}{}, nil
	})
	if err != nil {
		log.Fatalf("ptmdemo/romulus-lr: update failed: %v", err)
	}

	n, err := romulus.ReadTxLR(eng, h.TID(), func(tx *romulus.LRTx) (int64, error) {
		w, werr := romulus.GetRootLR[int64](eng, 0)
		if werr != nil || w == nil {
			return 0, werr
		}
		return w.Load(tx), nil
	})
	if err != nil {
		log.Fatalf("ptmdemo/romulus-lr: read failed: %v", err)
	}
	logger.Info().Int64("counter", n).Log("ptmdemo/romulus-lr: done")
}
