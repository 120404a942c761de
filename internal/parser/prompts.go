package parser

import (
	"fmt"
	"strings"

	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/types"
)

// 提示词模板。提示词正文保持英文：语料（岗位描述、简历）以英文为主，
// 混用中文指令会明显降低小模型的抽取质量。

// resumeExtractionSystemPrompt 简历结构化抽取的system提示词，
// 内置三个少样本示例覆盖"字段齐全/另一种排版/缺失教育和经历"三种情况。
const resumeExtractionSystemPrompt = `
You are an expert assistant that extracts structured information from resumes. Your task is to extract the following fields:

1.  **name**: The full name of the individual.
2.  **job_role**: The most recent or primary job title mentioned.
3.  **education**: A list of strings, each describing a degree, institution, location, and years. Include GPA or notable courses if available.
4.  **experience**: A list of strings, each describing a professional or academic experience, including role, organization, time period, and a brief summary of responsibilities or achievements.
5.  **skills**: A list of strings, detailing technical and soft skills (e.g., programming languages, frameworks, tools, design software, communication).

**Output Format:**

Return your output ONLY in this JSON format:
{
  "name" : "...",
  "job_role" : "...",
  "education": [...],
  "experience": [...],
  "skills": [...]
}

**Handling Missing Information:**

* If the **name** or **job_role** cannot be determined from the text, use ` + "`null`" + ` as the value for that field (e.g., ` + "`\"job_role\": null`" + `).
* If no **education**, **experience**, or **skills** entries are found, use an empty list ` + "`[]`" + ` for the corresponding field (e.g., ` + "`\"experience\": []`" + `).

Do not include any preamble or explanation before or after the JSON object. Just provide the JSON.

**Examples:**

**Example 1 (All fields present):**
Resume:
"Isaac Vance
Education:
- Aperture College of Engineering and Technology, Greater Noida, India — B.Tech. in Computer Science and Artificial Intelligence, GPA: 7.12 (Nov 2021 – Jul 2025)
- White Forest School, Delhi, India — 10+2, GPA: 6.5 (Apr 2020 – Apr 2021)
- Citadel Secondary School, Delhi, India — Matriculation, GPA: 8.4 (Apr 2018 – Apr 2019)

Experience:
- Mesa (Nov 2024 – Present): Full Stack Developer Intern. Built product from scratch, used NestJS, Next.js, Serverless Functions. Integrated social media APIs.
- Freelancer (Jul 2022 – Present): Built responsive websites using Next.js, Astro, TailwindCSS. Redesigned Breen Travels website, improved reach by 20%.

Skills:
Languages: C, C++, JavaScript, TypeScript, Python
Frameworks: ReactJS, NextJS, Astro, ExpressJS, TailwindCSS, NodeJS, Flask
Tools: Docker, GIT, PostgreSQL, MySQL, MongoDB, Firebase, Prisma
Design: Figma, Adobe Photoshop, Adobe Illustrator"

Output:
{
  "name": "Isaac Vance",
  "job_role" : "Full Stack Developer Intern",
  "education": [
    "B.Tech. in Computer Science and Artificial Intelligence, Aperture College of Engineering and Technology, Greater Noida, India (Nov 2021 – Jul 2025), GPA: 7.12",
    "10+2, White Forest School, Delhi, India (Apr 2020 – Apr 2021), GPA: 6.5",
    "Matriculation, Citadel Secondary School, Delhi, India (Apr 2018 – Apr 2019), GPA: 8.4"
  ],
  "experience": [
    "Full Stack Developer Intern at Mesa (Nov 2024 – Present): Built product from scratch using NestJS, Next.js, Serverless Functions; integrated social media APIs.",
    "Freelancer – Web Development Projects (Jul 2022 – Present): Built responsive sites with Next.js, Astro, TailwindCSS. Redesigned Breen Travels website; improved reach by 20%."
  ],
  "skills": [
    "C", "C++", "JavaScript", "TypeScript", "Python",
    "ReactJS", "NextJS", "Astro", "ExpressJS", "TailwindCSS", "NodeJS", "Flask",
    "Docker", "GIT", "PostgreSQL", "MySQL", "MongoDB", "Firebase", "Prisma",
    "Figma", "Adobe Photoshop", "Adobe Illustrator"
  ]
}

**Example 2 (All fields present - different format):**
Resume:
"Hardik Prakash
Email: hardikprakash.official@gmail.com | Phone: +918130841139 | Location: Delhi, India | GitHub: https://github.com/

Work Experience:
- NeGD, Digital India Corporation, MeitY (Feb 2025 – Apr 2025): Data Analyst Intern (Delhi, India)
  - Sentiment Analysis: Analyzed Android/iOS feedback... Applied TF-IDF and BERT...
  - LLM & Text Mining: Used self-hosted LLMs, NLTK, and Scikit-learn...
  - Forecasting: Built category-wise time-series growth models using PROPHET.
- FutureSoft India (Jun 2024 – Jan 2025): SDE Intern (Remote)
  - Contributed to developing a forest surveillance system using YOLOv8 and React.js...
  - Designed backend APIs with FastAPI and implemented SQLite-based alert logging system...
  - Developed predictive models for grid power usage trends...
  - Stack: React.js, Python (FastAPI, Flask), YOLOv8, SQLite, Pandas, NumPy, SciKit-Learn, Seaborn.

Education:
- A.P.J. Abdul Kalam University, Noida, India (2021 – 2025): B.Tech in Computer Science and Artificial Intelligence. Maintained ICAC3N Portal... Active member of GCELI2... Participated in Hackathons...

Certifications: Deep Learning Specialization (Coursera), Microsoft Azure Fundamentals, Azure Data Fundamentals

Skills:
- Data Science & ML Tools: Pandas, NumPy, SciKit-Learn, Seaborn, YOLOv8, NLTK, PROPHET
- Backend & Dev Tools: FastAPI, Flask, PostgreSQL, Microsoft Azure, Supabase, SQLite
- Frontend & Web Development: React, Next.js, Prisma, NextAuth.js, React.js
- Interests: Music, Reading, Homelab, Hiking, Cooking"

Output:
{
  "name": "Hardik Prakash",
  "job_role" : "Data Analyst Intern",
  "education": [
    "B.Tech in Computer Science and Artificial Intelligence, A.P.J. Abdul Kalam University, Noida, India (2021 – 2025)"
  ],
  "experience": [
    "Data Analyst Intern at NeGD, Digital India Corporation, MeitY (Feb 2025 – Apr 2025): Analyzed user feedback using TF-IDF, BERT, LLMs, NLTK, and Scikit-learn for sentiment analysis and insights. Built forecasting models using PROPHET.",
    "SDE Intern at FutureSoft India (Jun 2024 – Jan 2025): Developed a forest surveillance system with YOLOv8 and React.js. Built backend APIs with FastAPI and SQLite. Developed power usage prediction models."
  ],
  "skills": [
    "Pandas", "NumPy", "SciKit-Learn", "Seaborn", "YOLOv8", "NLTK", "PROPHET", "TF-IDF", "BERT",
    "FastAPI", "Flask", "PostgreSQL", "Microsoft Azure", "Supabase", "SQLite",
    "React", "Next.js", "Prisma", "NextAuth.js", "React.js",
    "Deep Learning Specialization", "Azure Fundamentals", "Azure Data Fundamentals"
  ]
}

**Example 3 (Missing Education and Experience):**
Resume:
"Alyx Vance
Contact: alyx.v@example.com | Location: City 17

Summary: Motivated individual seeking opportunities in tech.

Technical Skills: Python, SQL, Git, Basic C#
Soft Skills: Communication, Teamwork, Problem Solving"

Output:
{
  "name": "Alyx Vance",
  "job_role" : null,
  "education": [],
  "experience": [],
  "skills": ["Python", "SQL", "Git", "C#"]
}

`

// resumeExtractionUserTemplate 抽取调用的user消息模板，%s为简历全文
const resumeExtractionUserTemplate = "Now extract the information from this resume:\n\n%s"

// recommendSkillsPromptTemplate 技能推荐提示词模板。
// 占位符顺序: 当前技能, 教育, 经历, 相关岗位文本
const recommendSkillsPromptTemplate = `
You are an expert career assistant. Given the following information, analyze the user's background and the requirements of relevant job postings, then suggest a list of 9 most important and relevant new skills the user should learn to become a stronger candidate. Don't suggest over 9 skills.

User's Current Skills:
%s

User's Education:
%s

User's Experience:
%s

Relevant Job Postings (requirements, responsibilities, desired skills):
%s

Return your answer ONLY as a JSON object in this format:
{
  "recommended_skills": ["skill1", "skill2", ...]
}

Do not include any explanation or text outside the JSON.
`

// jobQueryPromptTemplate 检索查询模板，把候选人画像改写成"招聘方口吻"的查询文本，
// 让查询向量靠近岗位描述的语义空间。
// 占位符顺序: 岗位角色, 技能, 教育, 经历
const jobQueryPromptTemplate = `
We are looking for candidates with the following qualifications:
Target Job Role: %s
Key Skills: %s
Educational Background: %s
Experience: %s
`

// BuildJobQueryPrompt 把候选人画像改写成检索查询文本。
// 连接符与推荐提示词保持一致：技能", "，教育/经历" | "；缺失字段填占位符。
func BuildJobQueryPrompt(profile *types.CandidateProfile) string {
	skillsStr := constants.NotSpecifiedPlaceholder
	if len(profile.Skills) > 0 {
		skillsStr = strings.Join(profile.Skills, ", ")
	}
	educationStr := constants.NotSpecifiedPlaceholder
	if len(profile.Education) > 0 {
		educationStr = strings.Join(profile.Education, " | ")
	}
	experienceStr := constants.NotSpecifiedPlaceholder
	if len(profile.Experience) > 0 {
		experienceStr = strings.Join(profile.Experience, " | ")
	}

	return fmt.Sprintf(jobQueryPromptTemplate,
		profile.JobRoleOr(constants.NotSpecifiedPlaceholder),
		skillsStr, educationStr, experienceStr)
}
