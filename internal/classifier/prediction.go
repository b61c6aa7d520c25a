package classifier

// Kind tags the outcome of a prediction.
type Kind int

const (
	// KindLabel means Label holds a learned class.
	KindLabel Kind = iota
	// KindUnknown means the input carried no usable signal.
	KindUnknown
	// KindUntrained means no model is loaded.
	KindUntrained
	// KindError means prediction failed internally.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLabel:
		return "label"
	case KindUnknown:
		return "unknown"
	case KindUntrained:
		return "untrained"
	case KindError:
		return "error"
	}
	return "invalid"
}

// Display strings returned to chat users.
const (
	MessageUntrained = "Модель не обучена"
	MessageUnknown   = "Не могу определить (неизвестные слова)"
	MessageError     = "Ошибка обработки"
)

// Reasons attached to KindUnknown predictions.
const (
	ReasonNoKnownWords = "no known words"
	ReasonZeroVector   = "empty feature vector"
)

// Prediction is the result of Engine.Predict.
type Prediction struct {
	Kind   Kind
	Label  string
	Reason string
}

// String renders the prediction the way the chat surface shows it.
func (p Prediction) String() string {
	switch p.Kind {
	case KindLabel:
		return p.Label
	case KindUnknown:
		return MessageUnknown
	case KindUntrained:
		return MessageUntrained
	default:
		return MessageError
	}
}
