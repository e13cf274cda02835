package pipeline

import (
	"encoding/json"
	"fmt"
)

// Prompt builders for each phase. All prompts request JSON so the parse
// helpers can recover structure; responses that ignore the shape degrade to
// structural defaults at the call site.

func planPrompt(goal string) string {
	return fmt.Sprintf(`Create a comprehensive deep research plan for:

GOAL: %s

Generate a strategic plan with MULTIPLE search queries for each phase.
Think about different angles to find and deeply research entities.

Return a JSON object:
{
    "strategy": "Overall research approach (2-3 sentences)",
    "discovery_queries": [
        "direct search for %s",
        "best/top rated version of the goal",
        "alternatives and competitors",
        "recommended for specific use cases",
        "industry leaders in this space"
    ],
    "deep_dive_aspects": [
        "pricing and plans",
        "features and capabilities",
        "pros and cons from reviews",
        "use cases and target audience",
        "integrations and technical details"
    ],
    "estimated_duration_minutes": 30
}

Return ONLY the JSON object.`, goal, goal)
}

func discoveryPrompt(query string) string {
	return fmt.Sprintf(`Search for: %s

Find entities/products/services that match this query.
For each one found, provide:
- name: Official name
- category: Type/category
- brief_description: 1-2 sentence description
- website: URL if known

Return as JSON array. Find 5-10 relevant entities.
Example: [{"name": "Example", "category": "Software", "brief_description": "A tool for...", "website": "example.com"}]`, query)
}

func pricingPrompt(name string) string {
	return fmt.Sprintf("Find detailed pricing information for %s. "+
		"Include all pricing tiers, monthly/annual costs, free trial info. "+
		`Return JSON: {"tiers": [...], "starting_price": "...", "free_trial": true/false}`, name)
}

func featuresPrompt(name string) string {
	return fmt.Sprintf("List the main features and capabilities of %s. "+
		"Be specific - what can users actually do with it? "+
		`Return JSON array of feature strings: ["feature1", "feature2", ...]`, name)
}

func prosConsPrompt(name string) string {
	return fmt.Sprintf("What are the pros and cons of %s based on user reviews? "+
		"Be specific with real advantages and disadvantages. "+
		`Return JSON: {"pros": [...], "cons": [...]}`, name)
}

func useCasesPrompt(name string) string {
	return fmt.Sprintf("Who should use %s? What are the best use cases? "+
		`Return JSON: {"use_cases": [...], "target_audience": "...", "best_for": "..."}`, name)
}

func competitorsPrompt(name string) string {
	return fmt.Sprintf("What are the main competitors to %s? What integrations does it support? "+
		`Return JSON: {"competitors": [...], "integrations": [...]}`, name)
}

func comparisonPrompt(a, b string) string {
	return fmt.Sprintf("Compare %s vs %s. "+
		"Which is better for different use cases? "+
		`Return JSON: {"winner_overall": "...", "comparison": "2-3 sentence comparison"}`, a, b)
}

func validationPrompt(name string) string {
	return fmt.Sprintf("Verify the pricing information for %s. "+
		"Find official pricing from their website. "+
		`Return JSON: {"verified": true/false, "current_pricing": "...", "source": "..."}`, name)
}

func deepenPricingPrompt(name string) string {
	return fmt.Sprintf("Find SPECIFIC pricing for %s. "+
		"Include exact prices, tiers, and what's included.", name)
}

func deepenFeaturesPrompt(name string) string {
	return fmt.Sprintf("List SPECIFIC features of %s. "+
		"Not generic descriptions - actual capabilities.", name)
}

func scoringPrompt(goal string, findingsCount int, sample []map[string]any) string {
	blob, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		blob = []byte("[]")
	}
	return fmt.Sprintf(`Evaluate the depth and quality of this research:

GOAL: %s
FINDINGS COUNT: %d
SAMPLE: %s

Evaluate on:
1. SPECIFICITY - Are details specific (actual prices, named features) or vague?
2. COMPLETENESS - Do findings have pricing, features, pros, cons, use cases?
3. ACTIONABILITY - Could someone make a decision from this data?

Return JSON:
{
    "overall_score": 0.0-1.0,
    "needs_more_depth": true/false,
    "shallow_findings": ["name1", "name2"],
    "missing_attributes": ["pricing", "features"],
    "recommendations": ["Get more specific pricing", "Add more use cases"]
}`, goal, findingsCount, blob)
}

func synthesisPrompt(goal string, findingsCount int, avgDepth float64, findingsData []map[string]any) string {
	blob, err := json.MarshalIndent(findingsData, "", "  ")
	if err != nil {
		blob = []byte("[]")
	}
	return fmt.Sprintf(`Create a comprehensive research report based on deep analysis.

RESEARCH GOAL: %s
QUALITY METRICS:
- Total findings: %d
- Average depth score: %.2f

FINDINGS DATA:
%s

Generate a detailed JSON report:
{
    "executive_summary": "3-4 paragraph comprehensive summary with specific names, prices, and recommendations...",
    "key_insights": ["Insight 1 with specific data...", "Insight 2...", ...],
    "top_recommendations": [
        {
            "rank": 1,
            "name": "Top pick name",
            "reasoning": "Why this is #1 with specific evidence...",
            "best_for": "Ideal use case",
            "pricing_summary": "Price overview"
        }
    ],
    "comparison_matrix": {
        "headers": ["Name", "Pricing", "Best For", "Key Strength"],
        "rows": [["Entity1", "$X/mo", "Teams", "Feature"], ...]
    },
    "market_analysis": "2-3 paragraphs on market trends based on the findings...",
    "strengths_weaknesses": [
        {
            "name": "Entity name",
            "strengths": ["Strength 1", "Strength 2"],
            "weaknesses": ["Weakness 1"],
            "verdict": "Overall assessment"
        }
    ],
    "next_steps": ["Actionable step 1...", "Step 2...", ...],
    "methodology": "Description of research methodology used"
}

Be SPECIFIC - use actual names, prices, and data from the findings.`, goal, findingsCount, avgDepth, blob)
}
