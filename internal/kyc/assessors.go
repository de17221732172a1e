package kyc

import (
	"math"
	"time"
)

// Suitability assessment (MiFID II style): scores the client profile 0-100
// across objectives, risk tolerance, experience and knowledge.

const (
	suitableThreshold             = 70
	suitableWithWarningsThreshold = 50
)

type SuitabilityInput struct {
	Objectives     string  `json:"objectives"`
	RiskTolerance  string  `json:"risk_tolerance"`
	Experience     string  `json:"experience"`
	KnowledgeScore float64 `json:"knowledge_score"`
}

type SuitabilityResult struct {
	Suitable           bool      `json:"suitable"`
	Level              string    `json:"level"`
	Score              int       `json:"score"`
	Recommendations    []string  `json:"recommendations"`
	Warnings           []string  `json:"warnings"`
	ObjectivesScore    int       `json:"objectives_score"`
	RiskToleranceScore int       `json:"risk_tolerance_score"`
	ExperienceScore    int       `json:"experience_score"`
	KnowledgePoints    int       `json:"knowledge_score"`
	AssessedAt         time.Time `json:"assessed_at"`
}

// AssessSuitability scores a client profile. Compliance buyers score highest
// on objectives; pure investment motives draw a warning because the products
// are compliance instruments first.
func AssessSuitability(input SuitabilityInput, now time.Time) SuitabilityResult {
	result := SuitabilityResult{AssessedAt: now}

	switch input.Objectives {
	case "compliance":
		result.ObjectivesScore = 30
		result.Recommendations = append(result.Recommendations,
			"Carbon certificates are ideal for compliance purposes")
	case "hedging":
		result.ObjectivesScore = 25
		result.Recommendations = append(result.Recommendations,
			"Carbon certificates can be used for hedging emissions risk")
	case "investment":
		result.ObjectivesScore = 20
		result.Warnings = append(result.Warnings,
			"Carbon certificates are primarily compliance instruments, not investment products")
	}

	switch input.RiskTolerance {
	case "conservative":
		result.RiskToleranceScore = 15
		result.Warnings = append(result.Warnings,
			"Carbon certificate prices can be volatile. Consider your risk tolerance.")
	case "moderate":
		result.RiskToleranceScore = 25
	case "aggressive":
		result.RiskToleranceScore = 20
		result.Warnings = append(result.Warnings,
			"High risk tolerance may lead to significant losses")
	}

	switch input.Experience {
	case "advanced":
		result.ExperienceScore = 25
	case "intermediate":
		result.ExperienceScore = 20
		result.Recommendations = append(result.Recommendations,
			"Consider starting with smaller positions until you gain more experience")
	case "beginner":
		result.ExperienceScore = 10
		result.Warnings = append(result.Warnings,
			"Limited trading experience. Please ensure you understand the risks.")
		result.Recommendations = append(result.Recommendations,
			"We recommend starting with small positions and gradually increasing exposure")
	}

	result.KnowledgePoints = int(input.KnowledgeScore * 0.2)
	if input.KnowledgeScore < 50 {
		result.Warnings = append(result.Warnings,
			"Low knowledge score. Please review educational materials before trading.")
		result.Recommendations = append(result.Recommendations,
			"Complete our educational resources on carbon certificate trading")
	} else if input.KnowledgeScore < 70 {
		result.Warnings = append(result.Warnings,
			"Moderate knowledge score. Consider additional education.")
	}

	result.Score = result.ObjectivesScore + result.RiskToleranceScore +
		result.ExperienceScore + result.KnowledgePoints

	switch {
	case result.Score >= suitableThreshold:
		result.Level = "suitable"
		result.Suitable = true
	case result.Score >= suitableWithWarningsThreshold:
		result.Level = "suitable_with_warnings"
		result.Suitable = true
	default:
		result.Level = "not_suitable"
		result.Warnings = append(result.Warnings,
			"Overall suitability score is below minimum threshold")
		result.Recommendations = append(result.Recommendations,
			"Please improve your knowledge and experience before trading")
	}
	return result
}

// ProductRecommendations maps a suitability outcome to tradable products.
// CEA needs an understanding of the conversion process, so clients with
// warnings start with EUA only.
type ProductRecommendations struct {
	Recommended    []string `json:"recommended_products"`
	NotRecommended []string `json:"not_recommended_products"`
	Reasoning      string   `json:"reasoning"`
}

func RecommendProducts(result SuitabilityResult) ProductRecommendations {
	switch result.Level {
	case "suitable":
		return ProductRecommendations{
			Recommended: []string{"EUA", "CEA"},
			Reasoning:   "Client is suitable for all carbon certificate products",
		}
	case "suitable_with_warnings":
		return ProductRecommendations{
			Recommended:    []string{"EUA"},
			NotRecommended: []string{"CEA"},
			Reasoning:      "Client is suitable for EUA certificates. CEA certificates require additional understanding of conversion process.",
		}
	default:
		return ProductRecommendations{
			NotRecommended: []string{"EUA", "CEA"},
			Reasoning:      "Client is not suitable for carbon certificate trading at this time. Additional education and experience required.",
		}
	}
}

// Appropriateness assessment: knowledge test result crossed with the
// client's experience declaration.

const (
	minKnowledgeScore              = 70
	minKnowledgeScoreWithEducation = 50
)

type KnowledgeTest struct {
	CorrectAnswers int `json:"correct_answers"`
	TotalQuestions int `json:"total_questions"`
}

type ExperienceDeclaration struct {
	HasTradedCarbonCertificates bool `json:"has_traded_carbon_certificates"`
	HasTradedSimilarProducts    bool `json:"has_traded_similar_products"`
	HasFinancialExperience      bool `json:"has_financial_experience"`
}

type AppropriatenessResult struct {
	Status          string    `json:"status"`
	Level           string    `json:"level"`
	KnowledgeScore  float64   `json:"knowledge_score"`
	HasExperience   bool      `json:"has_experience"`
	CorrectAnswers  int       `json:"correct_answers"`
	TotalQuestions  int       `json:"total_questions"`
	Recommendations []string  `json:"recommendations"`
	AssessedAt      time.Time `json:"assessed_at"`
}

func AssessAppropriateness(test KnowledgeTest, experience ExperienceDeclaration, now time.Time) AppropriatenessResult {
	var score float64
	if test.TotalQuestions > 0 {
		score = float64(test.CorrectAnswers) / float64(test.TotalQuestions) * 100
	}

	hasExperience := experience.HasTradedCarbonCertificates ||
		experience.HasTradedSimilarProducts ||
		experience.HasFinancialExperience

	result := AppropriatenessResult{
		KnowledgeScore: math.Round(score*100) / 100,
		HasExperience:  hasExperience,
		CorrectAnswers: test.CorrectAnswers,
		TotalQuestions: test.TotalQuestions,
		AssessedAt:     now,
	}

	switch {
	case score >= minKnowledgeScore && hasExperience:
		result.Status = "approved"
		result.Level = "full_access"
		result.Recommendations = []string{
			"You have been approved for full access to carbon certificate trading",
		}
	case score >= minKnowledgeScore:
		result.Status = "approved_with_education"
		result.Level = "limited_access"
		result.Recommendations = []string{
			"You have been approved but with limited access. Please complete educational materials.",
			"Consider starting with smaller positions until you gain more experience",
		}
	case score >= minKnowledgeScoreWithEducation:
		result.Status = "needs_education"
		result.Level = "no_access"
		result.Recommendations = []string{
			"Your knowledge score is below the minimum threshold",
			"Please complete our educational resources on carbon certificate trading",
			"You can retake the knowledge test after completing the education",
		}
	default:
		result.Status = "rejected"
		result.Level = "no_access"
		result.Recommendations = []string{
			"Your knowledge score is too low for trading carbon certificates",
			"Please complete comprehensive education on carbon markets and EU ETS",
			"Contact our support team for guidance on improving your knowledge",
		}
	}
	return result
}

// KnowledgeQuestion is one multiple-choice test question. The correct answer
// index and explanation are stripped before serving to applicants.
type KnowledgeQuestion struct {
	ID            int      `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// KnowledgeQuestions returns the fixed question bank
func KnowledgeQuestions() []KnowledgeQuestion {
	return []KnowledgeQuestion{
		{
			ID:       1,
			Question: "What is the difference between EUA and CEA certificates?",
			Options: []string{
				"EUA are European certificates ready for surrender, CEA are Chinese certificates that need conversion",
				"EUA and CEA are the same thing",
				"CEA are European certificates, EUA are Chinese",
				"There is no difference",
			},
			CorrectAnswer: 0,
			Explanation:   "EUA (European Union Allowances) are European certificates ready for surrender. CEA (China ETS Allowances) are Chinese certificates that need conversion to EUA before surrender.",
		},
		{
			ID:       2,
			Question: "What is the EU ETS Registry?",
			Options: []string{
				"A trading platform for carbon certificates",
				"A national registry where carbon certificates are held and tracked",
				"A government agency",
				"A type of certificate",
			},
			CorrectAnswer: 1,
			Explanation:   "The EU ETS Registry is a national registry system where carbon certificates are held and tracked. Each EU member state has its own registry.",
		},
		{
			ID:       3,
			Question: "What is the main risk associated with carbon certificate trading?",
			Options: []string{
				"Price volatility",
				"Certificate loss",
				"Regulatory changes",
				"All of the above",
			},
			CorrectAnswer: 3,
			Explanation:   "Carbon certificate trading involves multiple risks including price volatility, certificate management, and regulatory changes.",
		},
		{
			ID:       4,
			Question: "When must companies surrender carbon certificates?",
			Options: []string{
				"At the end of each calendar year",
				"At the end of each compliance period (typically 3 years)",
				"Only when they want to",
				"Never",
			},
			CorrectAnswer: 1,
			Explanation:   "Companies must surrender carbon certificates at the end of each compliance period, which is typically 3 years in the EU ETS.",
		},
		{
			ID:       5,
			Question: "What happens if a company does not surrender enough certificates?",
			Options: []string{
				"Nothing",
				"They receive a warning",
				"They face financial penalties and must still surrender certificates",
				"They get a discount",
			},
			CorrectAnswer: 2,
			Explanation:   "Companies that fail to surrender enough certificates face significant financial penalties and must still surrender the required amount.",
		},
		{
			ID:       6,
			Question: "Can CEA certificates be directly surrendered for compliance?",
			Options: []string{
				"Yes, always",
				"No, they must be converted to EUA first",
				"Only in some countries",
				"Only for small amounts",
			},
			CorrectAnswer: 1,
			Explanation:   "CEA certificates must be converted to EUA certificates before they can be surrendered for compliance in the EU ETS.",
		},
		{
			ID:       7,
			Question: "What factors influence carbon certificate prices?",
			Options: []string{
				"Supply and demand",
				"Regulatory changes",
				"Economic conditions",
				"All of the above",
			},
			CorrectAnswer: 3,
			Explanation:   "Carbon certificate prices are influenced by multiple factors including supply and demand, regulatory changes, and economic conditions.",
		},
		{
			ID:       8,
			Question: "What is the purpose of the EU ETS?",
			Options: []string{
				"To generate revenue for governments",
				"To reduce greenhouse gas emissions by creating a market for carbon allowances",
				"To promote renewable energy",
				"To tax companies",
			},
			CorrectAnswer: 1,
			Explanation:   "The EU ETS is a cap-and-trade system designed to reduce greenhouse gas emissions by creating a market for carbon allowances.",
		},
		{
			ID:       9,
			Question: "What is the minimum knowledge score required for trading approval?",
			Options:  []string{"50%", "60%", "70%", "80%"},
			CorrectAnswer: 2,
			Explanation:   "A minimum knowledge score of 70% is required for full trading approval.",
		},
		{
			ID:       10,
			Question: "Can you trade carbon certificates without an EU ETS Registry account?",
			Options: []string{
				"Yes, always",
				"No, you need a registry account to hold and transfer certificates",
				"Only for small amounts",
				"Only for CEA certificates",
			},
			CorrectAnswer: 1,
			Explanation:   "An EU ETS Registry account is required to hold and transfer carbon certificates. Trading without a registry account is not possible.",
		},
	}
}
