package deploy

import "fmt"

// TransferError 推送、解压或加载产物失败
type TransferError struct {
	Step string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Step, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
