package llm

import "fmt"

// Mode selects the prompt template for a tutoring request.
type Mode string

const (
	ModeHelpProblem    Mode = "help_problem"
	ModeExplain        Mode = "explain"
	ModeTips           Mode = "tips"
	ModePlan           Mode = "plan"
	ModeCheckSolution  Mode = "check_solution"
	ModePractice       Mode = "practice"
	ModeGenerateTask   Mode = "generate_task"
	ModeReviewSolution Mode = "review_solution"
	ModeClassAnalysis  Mode = "class_analysis"
	ModeTeacherTask    Mode = "teacher_task"
)

var templates = map[Mode]string{
	ModeHelpProblem:   "Реши пошагово задачу, объясняя ход решения на русском языке: %s",
	ModeExplain:       "Подробно объясни тему на русском языке с примерами: %s",
	ModeTips:          "Дай краткие практические советы по теме: %s",
	ModePlan:          "Составь краткий, понятный план обучения по теме с разбивкой по дням/неделям: %s",
	ModeCheckSolution: "Проанализируй решение задачи. Укажи ошибки, если есть, и покажи корректное решение. Текст: %s",
	ModePractice:      "Сгенерируй 5 практических задач по теме с ответами в конце. Формат: Задача 1, ... Ответы:. Тема: %s",
	ModeGenerateTask: "Сгенерируй ОДНУ математическую задачу по теме с четкой формулировкой. " +
		"Только условие без решения и без ответа. Формат: 'Задача: ...'. Тема: %s",
	ModeReviewSolution: "Проверь решение ученика. Найди ошибки и предложи улучшения. " +
		"Критерии: корректность, полнота, логика. Текст: %s",
	ModeClassAnalysis: "Суммируй типичные ошибки в работах класса и предложи рекомендации по теме. " +
		"Дай список частых ошибок и план их устранения. Текст: %s",
	ModeTeacherTask: "Сгенерируй ОДНУ математическую задачу по указанной теме и уровню. Только условие, без решения и ответа. " +
		"Формат: 'Задача: ...'. В случае неоднозначности задай 1 уточняющий вопрос в конце. Тема: %s",
}

// Prompt renders text into the template of mode. Unknown modes pass text through.
func Prompt(mode Mode, text string) string {
	tpl, ok := templates[mode]
	if !ok {
		return text
	}
	return fmt.Sprintf(tpl, text)
}
