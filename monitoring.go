package recordkv

import (
	"encoding/json"
)

func loggableRecord[R any](rt *RecordType[R], r *R) string {
	if r == nil {
		return "<none>"
	}
	if rt.suppressContent {
		return "<suppressed>"
	}
	return loggableVal(r)
}

func loggableVal(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "<unloggable: " + err.Error() + ">"
	}
	return string(raw)
}
