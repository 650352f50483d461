/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/goamr/InputParameters"
	"github.com/notargets/goamr/bvals"
	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/transport"
)

// ExchangeCmd runs flux-correction exchange cycles for a two-block
// fine/coarse configuration
var ExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Run flux-correction exchange cycles",
	Long: `
Runs complete Init -> Pack-and-Send -> Receive-and-Unpack -> Clear
exchange cycles for a coarse block with a finer neighbor on its +x1
face, then reports the restriction error against the seeded flux value.

goamr exchange`,
	Run: func(cmd *cobra.Command, args []string) {
		ep := InputParameters.DefaultExchangeParameters()
		if input, _ := cmd.Flags().GetString("input"); input != "" {
			data, err := os.ReadFile(input)
			if err != nil {
				fmt.Printf("unable to read input file: %v\n", err)
				os.Exit(1)
			}
			if err = ep.Parse(data); err != nil {
				fmt.Printf("%v\n", err)
				os.Exit(1)
			}
		}
		if cmd.Flags().Changed("nx1") {
			ep.Nx1, _ = cmd.Flags().GetInt("nx1")
		}
		if cmd.Flags().Changed("nx2") {
			ep.Nx2, _ = cmd.Flags().GetInt("nx2")
		}
		if cmd.Flags().Changed("nx3") {
			ep.Nx3, _ = cmd.Flags().GetInt("nx3")
		}
		if cmd.Flags().Changed("cycles") {
			ep.Cycles, _ = cmd.Flags().GetInt("cycles")
		}
		if cmd.Flags().Changed("np") {
			ep.NumWorkers, _ = cmd.Flags().GetInt("np")
		}
		if cmd.Flags().Changed("mode") {
			ep.Transport, _ = cmd.Flags().GetString("mode")
		}
		if cmd.Flags().Changed("rank") {
			ep.Rank, _ = cmd.Flags().GetInt("rank")
		}
		if cmd.Flags().Changed("listen") {
			ep.ListenAddr, _ = cmd.Flags().GetString("listen")
		}
		if cmd.Flags().Changed("peers") {
			ep.PeerAddrs, _ = cmd.Flags().GetStringSlice("peers")
		}
		if cmd.Flags().Changed("fullface") {
			ep.FullFace, _ = cmd.Flags().GetBool("fullface")
		}
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			ep.VerboseLogging = true
		}
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start(profile.CPUProfile).Stop()
		}
		ep.Print()
		if err := RunExchange(ep); err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(ExchangeCmd)
	ExchangeCmd.Flags().StringP("input", "I", "", "YAML input file with exchange parameters")
	ExchangeCmd.Flags().Int("nx1", 8, "active cells per block along x1")
	ExchangeCmd.Flags().Int("nx2", 8, "active cells per block along x2 (1 for lower dimensionality)")
	ExchangeCmd.Flags().Int("nx3", 8, "active cells per block along x3 (1 for lower dimensionality)")
	ExchangeCmd.Flags().IntP("cycles", "c", 1, "number of exchange cycles to run")
	ExchangeCmd.Flags().Int("np", 4, "worker count for the pack/unpack loops")
	ExchangeCmd.Flags().StringP("mode", "m", "local", "transport mode: local, channel, tcp")
	ExchangeCmd.Flags().Int("rank", 0, "this process rank (tcp mode)")
	ExchangeCmd.Flags().String("listen", "127.0.0.1:0", "listen address (tcp mode)")
	ExchangeCmd.Flags().StringSlice("peers", nil, "peer addresses indexed by rank (tcp mode)")
	ExchangeCmd.Flags().Bool("fullface", false, "bisection pairing: fine block carries twice the cells and covers the whole face")
	ExchangeCmd.Flags().Bool("verbose", false, "debug logging")
	ExchangeCmd.Flags().Bool("profile", false, "generate a CPU profile of the run")
}

func newLogger(ep *InputParameters.ExchangeParameters) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if ep.VerboseLogging {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMicro}).
		Level(lvl).With().Timestamp().Logger()
}

// pairSlot is where the demo attaches the finer neighbor: the coarse
// block's upper x1 face, quadrant (0,0)
func pairSlot() int { return mesh.FaceSlot(mesh.FaceX1, 1, 0, 0) }

// RunExchange executes ep.Cycles complete exchange cycles in the
// selected transport mode
func RunExchange(ep *InputParameters.ExchangeParameters) error {
	log := newLogger(ep)
	switch ep.Transport {
	case "local":
		return runLocal(ep, log)
	case "channel":
		return runChannel(ep, log)
	case "tcp":
		return runTCP(ep, log)
	}
	return fmt.Errorf("unknown transport mode %q", ep.Transport)
}

// runLocal places both blocks in one work unit on one rank, so every
// delivery takes the loop-back path.
func runLocal(ep *InputParameters.ExchangeParameters, log zerolog.Logger) error {
	x := mesh.NewMeshIndcs(ep.Nx1, ep.Nx2, ep.Nx3, ep.NGhost)
	topo := mesh.NewTopology(2, 0, 0, []int{0})
	topo.Levels[0] = 1
	topo.Levels[1] = 2
	if err := mesh.SetPair(topo, 0, pairSlot(), topo, 1); err != nil {
		return err
	}

	bv, err := bvals.NewBoundaryValuesFC(topo, x, mesh.QuadrantCoverage,
		transport.NewSingleRank(), log, ep.NumWorkers)
	if err != nil {
		return err
	}
	flx := bvals.NewEdgeField(2, x)
	for v := 0; v < 3; v++ {
		flx.Comp(v).FillBlock(1, ep.SeedValue)
	}

	for cycle := 0; cycle < ep.Cycles; cycle++ {
		if err = runCycle(bv, flx, true); err != nil {
			return fmt.Errorf("cycle %d: %w", cycle, err)
		}
		log.Info().Int("cycle", cycle).
			Float64("maxErr", faceError(bv, flx, 0, ep.SeedValue)).
			Msg("exchange cycle complete")
	}
	return nil
}

// runChannel splits the pair across two in-process ranks connected by
// the channel transport: rank 0 owns the coarse block, rank 1 the fine
// block. Both ranks execute the full scheduler sequence concurrently.
func runChannel(ep *InputParameters.ExchangeParameters, log zerolog.Logger) error {
	eps := transport.NewChannelGroup(2)
	var eg errgroup.Group
	for rank := 0; rank < 2; rank++ {
		rank := rank
		eg.Go(func() error { return runRank(ep, log, rank, eps[rank]) })
	}
	return eg.Wait()
}

func runTCP(ep *InputParameters.ExchangeParameters, log zerolog.Logger) error {
	tp, err := transport.NewTCP(ep.Rank, 2, ep.ListenAddr, log)
	if err != nil {
		return err
	}
	defer tp.Close()
	addrs := make(map[int]string)
	for r, a := range ep.PeerAddrs {
		if a != "" {
			addrs[r] = a
		}
	}
	if err = tp.Connect(addrs); err != nil {
		return err
	}
	return runRank(ep, log, ep.Rank, tp)
}

// runRank drives one distributed rank through every cycle. Rank 0 is
// the coarse receiver, rank 1 the fine sender.
func runRank(ep *InputParameters.ExchangeParameters, log zerolog.Logger,
	rank int, tp transport.Transport) error {
	coarse := mesh.NewTopology(1, 0, 0, []int{0, 1})
	fine := mesh.NewTopology(1, 1, 1, []int{0, 1})
	coarse.Levels[0] = 1
	fine.Levels[0] = 2
	if err := mesh.SetPair(coarse, 0, pairSlot(), fine, 0); err != nil {
		return err
	}

	var (
		topo *mesh.Topology
		x    mesh.MeshIndcs
		cov  = mesh.QuadrantCoverage
	)
	if rank == 0 {
		topo = coarse
		x = mesh.NewMeshIndcs(ep.Nx1, ep.Nx2, ep.Nx3, ep.NGhost)
		if ep.FullFace {
			cov = mesh.FullFaceCoverage
		}
	} else {
		topo = fine
		if ep.FullFace {
			x = mesh.NewMeshIndcs(2*ep.Nx1, scaled(ep.Nx2), scaled(ep.Nx3), ep.NGhost)
		} else {
			x = mesh.NewMeshIndcs(ep.Nx1, ep.Nx2, ep.Nx3, ep.NGhost)
		}
	}

	bv, err := bvals.NewBoundaryValuesFC(topo, x, cov, tp, log, ep.NumWorkers)
	if err != nil {
		return err
	}
	flx := bvals.NewEdgeField(1, x)
	if rank == 1 {
		for v := 0; v < 3; v++ {
			flx.Comp(v).FillBlock(0, ep.SeedValue)
		}
	}

	for cycle := 0; cycle < ep.Cycles; cycle++ {
		if err = runCycle(bv, flx, rank == 0); err != nil {
			return fmt.Errorf("rank %d cycle %d: %w", rank, cycle, err)
		}
		if rank == 0 {
			log.Info().Int("cycle", cycle).
				Float64("maxErr", faceError(bv, flx, 0, ep.SeedValue)).
				Msg("exchange cycle complete")
		}
	}
	return nil
}

// runCycle is the external scheduler contract for one exchange cycle:
// Init once, Pack once, poll Recv until complete, then drain both
// request sets.
func runCycle(bv *bvals.BoundaryValuesFC, flx *bvals.EdgeField, recvs bool) error {
	if st, err := bv.InitFluxRecv(); st == bvals.StatusFail {
		return err
	}
	if st, err := bv.PackAndSendFlux(flx); st == bvals.StatusFail {
		return err
	}
	if recvs {
		for {
			st, err := bv.RecvAndUnpackFlux(flx)
			if st == bvals.StatusFail {
				return err
			}
			if st == bvals.StatusComplete {
				break
			}
			time.Sleep(50 * time.Microsecond)
		}
	}
	if st, err := bv.ClearFluxRecv(); st == bvals.StatusFail {
		return err
	}
	if st, err := bv.ClearFluxSend(); st == bvals.StatusFail {
		return err
	}
	return nil
}

// faceError is the max-norm deviation of the corrected face/edge
// entries of coarse block m from the seeded flux value
func faceError(bv *bvals.BoundaryValuesFC, flx *bvals.EdgeField, m int, want float64) float64 {
	n := pairSlot()
	g := mesh.Geometry(n)
	var diff []float64
	for v := 0; v < 3; v++ {
		if !g.Carries(v) {
			continue
		}
		r := bv.RecvBuffer(n).Indcs[v]
		e := flx.Comp(v)
		for k := r.Bks; k <= r.Bke; k++ {
			for j := r.Bjs; j <= r.Bje; j++ {
				for i := r.Bis; i <= r.Bie; i++ {
					diff = append(diff, e.At(m, k, j, i)-want)
				}
			}
		}
	}
	if len(diff) == 0 {
		return 0
	}
	return floats.Norm(diff, math.Inf(1))
}

func scaled(nx int) int {
	if nx > 1 {
		return 2 * nx
	}
	return nx
}
