// Package buffernames centralises the canonical device.Buffer names the
// Scheme allocates, so both the orchestrator and any kernel bundle (real or
// the testkernels stand-ins) agree on how to address a bound argument by
// role via kernelreg.ExecContext.Arg, instead of by positional index.
package buffernames

const (
	CellStateA        = "hipims.cellState.A"
	CellStateB        = "hipims.cellState.B"
	Bed               = "hipims.bed"
	Manning           = "hipims.manning"
	FlowFlags         = "hipims.flowFlags"
	BoundaryCoupling  = "hipims.boundaryCoupling"
	DSDt              = "hipims.dsdt"
	Timestep          = "hipims.timestep"
	Time              = "hipims.time"
	TargetTime        = "hipims.targetTime"
	HydroTime         = "hipims.hydroTime"
	ReductionScratch  = "hipims.reductionScratch"
	BatchTimesteps    = "hipims.batch.timesteps"
	BatchSuccessful   = "hipims.batch.successful"
	BatchSkipped      = "hipims.batch.skipped"
)
