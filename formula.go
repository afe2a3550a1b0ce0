package recalc

// TaskStatus tracks a formula task through one recomputation pass. it only
// ever moves forward: New, Working, Done.
type TaskStatus uint8

const (
	TaskNew TaskStatus = iota
	TaskWorking
	TaskDone
)

func (s TaskStatus) String() string {
	switch s {
	case TaskNew:
		return "new"
	case TaskWorking:
		return "working"
	default:
		return "done"
	}
}

// FormulaTask is the bookkeeping record for one formula cell during a pass,
// keyed by "Sheet!Address". it holds lookup keys, not pointers into the
// workbook, plus the pass it belongs to.
type FormulaTask struct {
	Key     string
	Sheet   string
	Address string
	Status  TaskStatus

	calc *calculation
}

// FormulaTable is the arena of formula tasks for one pass, in discovery
// order and indexed by key
type FormulaTable struct {
	tasks []*FormulaTask
	byKey map[string]*FormulaTask
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		tasks: make([]*FormulaTask, 0),
		byKey: make(map[string]*FormulaTask),
	}
}

// discoverFormulas walks every sheet in SheetNames order, cells row-major,
// and creates a new task for each cell carrying a formula
func discoverFormulas(calc *calculation) *FormulaTable {
	table := NewFormulaTable()
	for _, sheetName := range calc.workbook.SheetNames {
		sheet, exists := calc.workbook.Sheet(sheetName)
		if !exists {
			continue
		}
		for _, address := range sheet.Addresses() {
			if cell, _ := sheet.Cell(address); cell.HasFormula() {
				table.Add(&FormulaTask{
					Key:     QualifiedAddress(sheetName, address),
					Sheet:   sheetName,
					Address: address,
					Status:  TaskNew,
					calc:    calc,
				})
			}
		}
	}
	return table
}

// Add appends a task. a task with a key that is already present is ignored.
func (ft *FormulaTable) Add(task *FormulaTask) bool {
	if _, exists := ft.byKey[task.Key]; exists {
		return false
	}
	ft.tasks = append(ft.tasks, task)
	ft.byKey[task.Key] = task
	return true
}

// Get retrieves the task for a qualified address
func (ft *FormulaTable) Get(key string) (*FormulaTask, bool) {
	task, exists := ft.byKey[key]
	return task, exists
}

// Len returns the number of tasks
func (ft *FormulaTable) Len() int {
	return len(ft.tasks)
}

// Tasks returns the tasks in discovery order
func (ft *FormulaTable) Tasks() []*FormulaTask {
	return ft.tasks
}

// CountByStatus counts the tasks currently in the given status
func (ft *FormulaTable) CountByStatus(status TaskStatus) int {
	count := 0
	for _, task := range ft.tasks {
		if task.Status == status {
			count++
		}
	}
	return count
}
