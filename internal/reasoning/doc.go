// Package reasoning — клиент внешнего reasoning-коллаборатора.
//
// Коллаборатор принимает текстовый промпт и возвращает текст,
// который стадия затем разбирает как JSON. Конкретный провайдер
// не важен: ChatClient работает с любым OpenAI-совместимым API
// (OpenAI, Ollama, vLLM, LiteLLM).
//
// Breaker оборачивает любой Client и быстро отказывает,
// когда коллаборатор недоступен.
package reasoning
