package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file controlling an exchange
// run: block geometry, refinement pairing, worker count, and transport
// selection.
type ExchangeParameters struct {
	Title          string   `yaml:"Title"`
	Nx1            int      `yaml:"Nx1"`
	Nx2            int      `yaml:"Nx2"`
	Nx3            int      `yaml:"Nx3"`
	NGhost         int      `yaml:"NGhost"`
	Cycles         int      `yaml:"Cycles"`
	NumWorkers     int      `yaml:"NumWorkers"`
	Transport      string   `yaml:"Transport"` // local, channel, tcp
	Rank           int      `yaml:"Rank"`
	ListenAddr     string   `yaml:"ListenAddr"`
	PeerAddrs      []string `yaml:"PeerAddrs"`
	FullFace       bool     `yaml:"FullFace"` // bisection pairing (fine block twice the cells)
	SeedValue      float64  `yaml:"SeedValue"`
	VerboseLogging bool     `yaml:"VerboseLogging"`
}

func DefaultExchangeParameters() *ExchangeParameters {
	return &ExchangeParameters{
		Title:      "two-block flux correction",
		Nx1:        8,
		Nx2:        8,
		Nx3:        8,
		NGhost:     2,
		Cycles:     1,
		NumWorkers: 4,
		Transport:  "local",
		SeedValue:  2.0,
	}
}

func (ep *ExchangeParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ep); err != nil {
		return fmt.Errorf("parse exchange parameters: %w", err)
	}
	if ep.Nx1 < 2 || ep.Nx1%2 != 0 {
		return fmt.Errorf("Nx1 must be even and >= 2, got %d", ep.Nx1)
	}
	if ep.Nx2 > 1 && ep.Nx2%2 != 0 {
		return fmt.Errorf("Nx2 must be even or 1, got %d", ep.Nx2)
	}
	if ep.Nx3 > 1 && ep.Nx3%2 != 0 {
		return fmt.Errorf("Nx3 must be even or 1, got %d", ep.Nx3)
	}
	return nil
}

func (ep *ExchangeParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ep.Title)
	fmt.Printf("[%d x %d x %d]\t\t= Block cells\n", ep.Nx1, ep.Nx2, ep.Nx3)
	fmt.Printf("[%d]\t\t\t= Ghost zones\n", ep.NGhost)
	fmt.Printf("[%d]\t\t\t= Cycles\n", ep.Cycles)
	fmt.Printf("[%d]\t\t\t= Workers\n", ep.NumWorkers)
	fmt.Printf("[%s]\t\t= Transport\n", ep.Transport)
	if ep.Transport == "tcp" {
		fmt.Printf("[%d]\t\t\t= Rank\n", ep.Rank)
		fmt.Printf("[%s]\t\t= ListenAddr\n", ep.ListenAddr)
		fmt.Printf("%v\t\t= PeerAddrs\n", ep.PeerAddrs)
	}
}
