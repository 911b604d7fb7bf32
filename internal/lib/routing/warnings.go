package routing

// TurnWarningCalculator decides which announcement, if any, a progress
// snapshot calls for.
type TurnWarningCalculator struct {
	thresholds Thresholds
}

// NewTurnWarningCalculator creates a calculator using the given thresholds.
func NewTurnWarningCalculator(thresholds Thresholds) *TurnWarningCalculator {
	return &TurnWarningCalculator{thresholds: thresholds.withDefaults()}
}

// CheckForWarning returns the highest-priority warning due, or nil.
// Priority: arrival, advance, immediate, straight checkpoint.
func (c *TurnWarningCalculator) CheckForWarning(progress Progress, route Route) *TurnWarning {
	if progress.Arrived || progress.TotalDistanceRemaining <= c.thresholds.Arrival {
		return &TurnWarning{Kind: ArrivalWarning, StepIndex: progress.CurrentStepIndex}
	}

	step, ok := route.Step(progress.CurrentStepIndex)
	if !ok {
		return nil
	}

	distance := progress.DistanceToCurrentStep
	advance := c.thresholds.AdvanceWarningDistance()

	if distance <= advance && !progress.HasGivenAdvanceWarning {
		return &TurnWarning{Kind: AdvanceWarning, StepIndex: progress.CurrentStepIndex, Step: &step, Distance: distance}
	}

	if distance <= c.thresholds.ImmediateWarning && !progress.HasGivenImmediateWarning {
		return &TurnWarning{Kind: ImmediateWarning, StepIndex: progress.CurrentStepIndex, Step: &step, Distance: distance}
	}

	if step.Maneuver == Straight && distance > c.thresholds.Checkpoint && distance > advance && c.checkpointDue(progress) {
		return &TurnWarning{Kind: CheckpointWarning, StepIndex: progress.CurrentStepIndex, Step: &step, Distance: distance}
	}

	return nil
}

// checkpointDue applies the distance-travelled guard. An interval of zero
// allows a single checkpoint per step.
func (c *TurnWarningCalculator) checkpointDue(progress Progress) bool {
	if progress.LastCheckpointDistance <= 0 {
		return true
	}
	if c.thresholds.CheckpointInterval <= 0 {
		return false
	}
	return progress.LastCheckpointDistance-progress.DistanceToCurrentStep >= c.thresholds.CheckpointInterval
}
