package privacy

// firstNames is a small multilingual gazetteer of common given names. Names that
// double as everyday words (Will, May, Mark, Grace, ...) are left out.
var firstNames = []string{
	// Italian
	"Mario", "Luigi", "Giuseppe", "Giovanni", "Francesco", "Alessandro", "Andrea", "Marco", "Matteo",
	"Lorenzo", "Davide", "Luca", "Paolo", "Stefano", "Roberto", "Antonio", "Giulia", "Chiara", "Sara",
	"Francesca", "Martina", "Alessia", "Valentina", "Elena", "Federica", "Silvia", "Giorgia", "Anna", "Maria",
	"Laura", "Paola", "Sofia", "Aurora", "Ginevra", "Beatrice", "Lucia",
	// English
	"John", "James", "Robert", "Michael", "David", "William", "Richard", "Thomas", "Charles", "Daniel",
	"Matthew", "Anthony", "Steven", "Andrew", "Joshua", "Kevin", "Brian", "George", "Edward", "Mary",
	"Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara", "Susan", "Jessica", "Sarah", "Karen", "Emily",
	"Emma", "Olivia", "Jane", "Alice", "Lucy", "Hannah",
	// French
	"Jean", "Pierre", "Michel", "Louis", "Nicolas", "Julien", "Antoine", "Camille", "Marie", "Sophie",
	"Isabelle", "Nathalie", "Claire", "Julie", "Manon", "Juliette",
	// German
	"Hans", "Klaus", "Jürgen", "Stefan", "Andreas", "Wolfgang", "Dieter", "Lukas", "Jonas", "Felix",
	"Ursula", "Monika", "Petra", "Sabine", "Katharina", "Lena",
	// Spanish
	"Carlos", "Javier", "Miguel", "Alejandro", "Pablo", "Diego", "Carmen", "Lucía", "Isabel", "Pilar",
	"Ana", "Rocío", "Marta", "Cristina",
}
