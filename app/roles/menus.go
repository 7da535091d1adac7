package roles

// Menu labels. Lookup folds input, so labels are stored lowercase.
const (
	LabelMain = "главная"

	LabelRegisterTeacher = "зарегестрироваться как учитель"
	LabelRegisterStudent = "зарегестрироваться как ученик"

	LabelProfile        = "профиль"
	LabelChangePassword = "сменить пароль"
	LabelDeleteProfile  = "удалить профиль"
	LabelAIHelper       = "ai помощник"

	LabelApplications   = "заявки"
	LabelMyTeachers     = "мои учителя"
	LabelTasks          = "задания"
	LabelGetTasks       = "получить задания"
	LabelSubmitSolution = "отправить решение"
	LabelHelpProblem    = "помощь с задачей"
	LabelExplain        = "объяснить теорию"
	LabelTips           = "получить советы"
	LabelPlan           = "план обучения"
	LabelCheckSolution  = "проверить решение"
	LabelPractice       = "практика"
	LabelGenerateTask   = "сгенерировать задание"

	LabelAttachClass      = "прикрепить класс"
	LabelAttachAll        = "прикрепить всех"
	LabelMyStudents       = "ваши учащиеся"
	LabelSendTask         = "отправить задание"
	LabelSendIndividual   = "отправить индивидуальное задание"
	LabelSendClass        = "отправить задание классу"
	LabelCheckTasks       = "проверить задания"
	LabelCheckIndividual  = "проверить индивидуальные задания"
	LabelCheckClass       = "задания для класса"
	LabelGenerateForClass = "сгенерировать для класса"
	LabelAICheck          = "ai проверка"
	LabelProgress         = "анализ прогресса"
)

var (
	GuestMenu = [][]string{
		{LabelRegisterStudent},
		{LabelRegisterTeacher},
	}

	StudentMenu = [][]string{
		{LabelProfile, LabelApplications},
		{LabelMyTeachers, LabelTasks},
		{LabelAIHelper},
	}

	TeacherMenu = [][]string{
		{LabelProfile, LabelAttachClass},
		{LabelMyStudents, LabelSendTask},
		{LabelCheckTasks, LabelAIHelper},
	}

	profileMenu = [][]string{
		{LabelChangePassword, LabelDeleteProfile},
		{LabelMain},
	}

	studentTasksMenu = [][]string{
		{LabelGetTasks, LabelSubmitSolution},
		{LabelMain},
	}

	studentAIMenu = [][]string{
		{LabelHelpProblem, LabelExplain},
		{LabelTips, LabelPlan},
		{LabelCheckSolution, LabelPractice},
		{LabelGenerateTask},
		{LabelMain},
	}

	teacherAttachMenu = [][]string{
		{LabelAttachAll},
		{LabelMain},
	}

	teacherHomeworkMenu = [][]string{
		{LabelSendIndividual, LabelSendClass},
		{LabelMain},
	}

	teacherCheckMenu = [][]string{
		{LabelCheckIndividual, LabelCheckClass},
		{LabelMain},
	}

	teacherAIMenu = [][]string{
		{LabelGenerateTask, LabelGenerateForClass},
		{LabelAICheck, LabelProgress},
		{LabelMain},
	}
)
